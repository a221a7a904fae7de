package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/productprogress/internal/services"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view [productId]",
	Short: "Print the product list, or one product with its steps and entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runView,
}

var watchCmd = &cobra.Command{
	Use:   "watch <productId>",
	Short: "Print the product view every time its steps or entries change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(viewCmd, watchCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backends, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer backends.Close()

	productID := ""
	if len(args) == 1 {
		productID = args[0]
	}
	res, err := services.NewViewFunction(backends.Docs).Process(ctx, productID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	backends, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer backends.Close()

	for update := range services.NewViewFunction(backends.Docs).Watch(ctx, args[0]) {
		if update.Err != nil {
			return fmt.Errorf("watch stopped: %w", update.Err)
		}
		if err := printJSON(cmd.OutOrStdout(), update.View); err != nil {
			return err
		}
	}
	return nil
}
