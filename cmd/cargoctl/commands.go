package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/BearBump/CargoDesk/config"
	"github.com/BearBump/CargoDesk/internal/broker/kafka"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/cache/rediscache"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/BearBump/CargoDesk/internal/services/sweep"
	"github.com/BearBump/CargoDesk/internal/storage/pgstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ctlStore is what the maintenance commands need from storage.
type ctlStore interface {
	reconcile.Store
	sweep.GroupLister
	sweep.UnassignedStore
}

// ctlDeps opens what the commands need. newGroupCache is the cache the api
// serves tracking groups from; sweeps clear the groups they change.
type ctlDeps struct {
	loadConfig    func(path string) (*config.Config, error)
	openStore     func(cfg *config.Config) (ctlStore, func(), error)
	newPublisher  func(cfg *config.Config) (sweep.EventPublisher, func())
	newGroupCache func(cfg *config.Config) (cache.BytesCache, func())
}

func defaultDeps() ctlDeps {
	return ctlDeps{
		loadConfig: config.LoadConfig,
		openStore: func(cfg *config.Config) (ctlStore, func(), error) {
			st, err := pgstore.New(cfg.PostgresConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newPublisher: func(cfg *config.Config) (sweep.EventPublisher, func()) {
			p := kafka.NewProducer(cfg.KafkaBrokers(), cfg.EventsTopic())
			return p, func() { _ = p.Close() }
		},
		newGroupCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			rc := rediscache.New(cfg.RedisAddr())
			return rc, func() { _ = rc.Close() }
		},
	}
}

func (d ctlDeps) groupCache(cfg *config.Config) (cache.BytesCache, func()) {
	if d.newGroupCache == nil {
		return nil, func() {}
	}
	c, closeFn := d.newGroupCache(cfg)
	if closeFn == nil {
		closeFn = func() {}
	}
	return c, closeFn
}

func newRootCmd(deps ctlDeps) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "cargoctl",
		Short:         "CargoDesk maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("configPath"), "path to config.yaml")

	// setup loads the config and opens storage for a subcommand.
	setup := func() (*config.Config, ctlStore, func(), error) {
		if cfgPath == "" {
			return nil, nil, nil, errors.New("--config or configPath env var is required")
		}
		cfg, err := deps.loadConfig(cfgPath)
		if err != nil {
			return nil, nil, nil, err
		}
		st, closeFn, err := deps.openStore(cfg)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "open storage")
		}
		if closeFn == nil {
			closeFn = func() {}
		}
		return cfg, st, closeFn, nil
	}

	root.AddCommand(
		newNormalizeCmd(setup, deps),
		newAutoSyncCmd(setup, deps, false),
		newAutoSyncCmd(setup, deps, true),
	)
	return root
}

type setupFunc func() (*config.Config, ctlStore, func(), error)

func newNormalizeCmd(setup setupFunc, deps ctlDeps) *cobra.Command {
	var (
		opts   sweep.NormalizeOptions
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Reconcile every tracking group (owner and shipping mark)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()
			if !cmd.Flags().Changed("concurrency") && cfg.CargoDesk.NormalizeConcurrency > 0 {
				opts.Concurrency = cfg.CargoDesk.NormalizeConcurrency
			}

			groups, closeGroups := deps.groupCache(cfg)
			defer closeGroups()

			engine := reconcile.New(st, reconcile.WithUnownedMarkHarmonization(true))
			sum, err := sweep.NewNormalizer(st, engine, groups).RunFullNormalize(cmd.Context(), opts)
			if sum != nil {
				if asJSON {
					writeJSON(cmd.OutOrStdout(), sum)
				} else {
					printNormalizeReport(cmd.OutOrStdout(), sum)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report changes without writing")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "visit at most N groups (0 = all)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 4, "groups reconciled in parallel")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

// newAutoSyncCmd builds "auto-sync" or, with report set, "match": the same
// unassigned sweep, the latter printing every row.
func newAutoSyncCmd(setup setupFunc, deps ctlDeps, report bool) *cobra.Command {
	var (
		verbose bool
		publish bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "auto-sync",
		Short: "Assign ownerless trackings whose shipping mark is known",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, st, closeFn, err := setup()
			if err != nil {
				return err
			}
			defer closeFn()

			var events sweep.EventPublisher
			if publish && deps.newPublisher != nil {
				p, closeP := deps.newPublisher(cfg)
				if closeP != nil {
					defer closeP()
				}
				events = p
			}

			groups, closeGroups := deps.groupCache(cfg)
			defer closeGroups()

			sum, err := sweep.NewUnassignedSweeper(st, events, groups).RunUnassignedSweep(cmd.Context(), verbose || report)
			if err != nil {
				return err
			}
			switch {
			case asJSON:
				writeJSON(cmd.OutOrStdout(), sum)
			case report:
				printMatchReport(cmd.OutOrStdout(), sum)
			default:
				printAutoSyncSummary(cmd.OutOrStdout(), sum, verbose)
			}
			return nil
		},
	}
	if report {
		cmd.Use = "match"
		cmd.Short = "Match ownerless trackings to users and print a per-row report"
	} else {
		cmd.Flags().BoolVar(&verbose, "verbose", false, "log every row")
	}
	cmd.Flags().BoolVar(&publish, "publish", true, "publish update events for matched rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func execute(ctx context.Context, root *cobra.Command, args []string) error {
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
