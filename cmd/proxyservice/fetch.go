package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/pkg/metrics"
)

func newFetchCmd() *cobra.Command {
	var (
		filters entity.Filters
		profile int
		blocked []int64
	)

	cmd := &cobra.Command{
		Use:   "fetch <target-id>",
		Short: "Fetch a proxy list for a target and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cmd.Flags().Changed("profile") {
				filters.Profile = &profile
			}

			inv, err := newInventoryClient(cfg, log, metrics.NewNop())
			if err != nil {
				return err
			}
			records, err := inv.FetchProxies(cmd.Context(), args[0], filters, blocked)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}

	f := cmd.Flags()
	f.IntVar(&filters.Length, "length", entity.DefaultLength, "Number of proxies to request")
	f.IntVar(&profile, "profile", 0, "Inventory profile id; overrides --locations and --types")
	f.StringVar(&filters.Locations, "locations", "", "Location filter")
	f.StringVar(&filters.Types, "types", "", "Proxy type filter")
	f.StringVar(&filters.Providers, "providers", "", "Provider filter")
	f.StringVar(&filters.IgnoreIPs, "ignore", "", "IPs the inventory should leave out")
	f.Int64SliceVar(&blocked, "blocked", nil, "Proxy ids to exclude")
	return cmd
}
