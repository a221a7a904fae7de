package main

import (
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/services"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <productId>",
	Short: "Render a product's photo log as a PDF and print its address",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backends, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer backends.Close()

	res, err := services.NewReportFunction(backends.Docs, backends.Objects).Process(ctx, &models.ReportRequest{ProductID: args[0]})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
