package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/user/proxyservice/internal/binder"
	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/proxy"
	"github.com/user/proxyservice/pkg/config"
	"github.com/user/proxyservice/pkg/metrics"
)

func newGetCmd() *cobra.Command {
	var (
		uc      config.UnitConfig
		retries int
		direct  bool
	)

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Request a URL through a target's proxy pool and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			m := metrics.NewNop()
			inv, err := newInventoryClient(cfg, log, m)
			if err != nil {
				return err
			}

			uc.Name = "cli"
			unit := unitFromConfig(uc)
			mgr := proxy.NewManager(inv, proxy.WithLogger(log), proxy.WithMetrics(m))
			if err := mgr.Open(cmd.Context(), unit); err != nil {
				return err
			}
			defer mgr.Close(unit.Name)

			ctx := cmd.Context()
			if direct {
				ctx = binder.WithProxyDisabled(ctx)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, args[0], nil)
			if err != nil {
				return err
			}

			b := binder.New(mgr, binder.WithLogger(log), binder.WithMetrics(m))
			resp, err := binder.NewClient(b, unit, retries).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			verdict := binder.OK
			if b.IsBlockedResponse(resp, unit) {
				verdict = binder.Blocked
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s (%s)\n", resp.Status, verdict)
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&uc.TargetID, "target", "", "Target id whose pool serves the request")
	f.StringVar(&uc.Algorithm, "algorithm", string(entity.AlgorithmRandom), "Selection algorithm: random or round_robin")
	f.IntVar(&uc.Length, "length", entity.DefaultLength, "Number of proxies to request")
	f.StringVar(&uc.Providers, "providers", "", "Provider filter")
	f.StringVar(&uc.BlockedSelector, "blocked-selector", "", "CSS selector identifying block pages")
	f.IntVar(&retries, "retries", 1, "Retries through a fresh proxy after a connection failure")
	f.BoolVar(&direct, "direct", false, "Send the request without a proxy")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
