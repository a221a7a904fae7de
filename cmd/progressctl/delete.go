package main

import (
	"fmt"

	"github.com/Lllllllleong/productprogress/internal/cascade"
	"github.com/spf13/cobra"
)

var deleteStepCmd = &cobra.Command{
	Use:   "delete-step <productId> <taskId>",
	Short: "Delete a step, its linked progress entries and their photos",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCascade(cmd, func(c *cascade.Coordinator) (*cascade.Report, error) {
			return c.DeleteStepWithReport(cmd.Context(), args[0], args[1])
		})
	},
}

var deleteProductCmd = &cobra.Command{
	Use:   "delete-product <productId>",
	Short: "Delete a product with every step, entry and uploaded object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCascade(cmd, func(c *cascade.Coordinator) (*cascade.Report, error) {
			return c.DeleteProductWithReport(cmd.Context(), args[0])
		})
	},
}

var deleteEntryCmd = &cobra.Command{
	Use:   "delete-entry <productId> <entryId>",
	Short: "Delete one progress entry and its photos",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCascade(cmd, func(c *cascade.Coordinator) (*cascade.Report, error) {
			return c.DeleteEntryWithReport(cmd.Context(), args[0], args[1])
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep <prefix>",
	Short: "Delete every object below a namespace prefix, e.g. uploads/<productId>",
	Args:  cobra.ExactArgs(1),
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(deleteStepCmd, deleteProductCmd, deleteEntryCmd, sweepCmd)
}

func runCascade(cmd *cobra.Command, run func(*cascade.Coordinator) (*cascade.Report, error)) error {
	backends, err := openBackends(cmd.Context())
	if err != nil {
		return err
	}
	defer backends.Close()

	rep, err := run(cascade.NewCoordinator(backends.Docs, backends.Objects, nil))
	if rep != nil {
		if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backends, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer backends.Close()

	n, err := cascade.NewCoordinator(backends.Docs, backends.Objects, nil).Sweep(ctx, args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d objects below %s\n", n, args[0])
	return err
}
