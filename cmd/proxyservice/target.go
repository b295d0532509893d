package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/proxyservice/pkg/metrics"
)

var errTargetNotFound = errors.New("target not found")

func newTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target <target-id>",
		Short: "Check whether the inventory service knows a target",
		Long:  "Exits with status 1 when the target is unknown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			inv, err := newInventoryClient(cfg, log, metrics.NewNop())
			if err != nil {
				return err
			}
			exists, err := inv.TargetExists(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", errTargetNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "target %s exists\n", args[0])
			return nil
		},
	}
}
