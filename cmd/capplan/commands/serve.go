package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/capplan/pkg/facts"
	"github.com/openfroyo/capplan/pkg/planner"
	"github.com/openfroyo/capplan/pkg/policy"
	"github.com/openfroyo/capplan/pkg/server"
)

func newServeCommand() *cobra.Command {
	var (
		sources factFlags
		address string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve planning requests over HTTP",
		Long: `Start the HTTP front end.

POST /plan plans against the configured model files, or against a SPARQL
endpoint named in the request. GET /healthz, GET /metrics and the run history
under /runs are served alongside.

With --watch (or facts.watch and policy.watch in the configuration) model
files and policy files are reloaded when they change.`,
		Example: `  # Serve model files on the default address
  capplan serve --model 'models/*.mg'

  # Serve with a configuration file and reload on change
  capplan serve --config capplan.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sources.apply(cfg)
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if watch {
				cfg.Facts.Watch = true
				cfg.Policy.Watch = true
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			src, err := a.openFacts()
			if err != nil {
				return err
			}
			parts, err := a.newPlannerParts(ctx, nil)
			if err != nil {
				return err
			}
			local, err := a.newPlanner(parts, src)
			if err != nil {
				return err
			}

			if cfg.Facts.Watch && src.mangle != nil {
				w := facts.NewWatcher(a.logger, src.mangle, func(err error) {
					if err == nil {
						src.cache.Reset()
					}
					a.tel.Metrics.RecordModelReload(err)
					_ = a.tel.Events.PublishModelReloaded(err)
				})
				if err := w.Watch(ctx); err != nil {
					return err
				}
				a.closers = append(a.closers, w.Close)
			}
			if cfg.Policy.Watch && parts.policies != nil && len(cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(a.logger)
				err := loader.Watch(ctx, cfg.Policy.Paths, func(policies []policy.Policy) error {
					return parts.policies.ReplacePolicies(ctx, policies)
				})
				if err != nil {
					return err
				}
				a.closers = append(a.closers, loader.StopWatching)
			}

			// Remote planners share everything but the fact store.
			remote, err := newRemotePlanners(cfg.Server.RemotePlanners, cfg.Server.AllowedEndpoints,
				func(endpoint string) (*planner.Planner, error) {
					store := facts.NewSPARQLStore(a.logger, endpoint, cfg.Facts.Timeout)
					cached, err := facts.NewCachedStore(store, cfg.Facts.CacheSize, a.tel.Metrics)
					if err != nil {
						return nil, err
					}
					return a.newPlanner(parts, &factSource{store: cached, label: endpoint})
				})
			if err != nil {
				return err
			}

			deps := server.Dependencies{
				Planner:   local,
				Remote:    remote.get,
				Telemetry: a.tel,
			}
			if parts.runs != nil {
				deps.Runs = parts.runs
			}
			srv, err := server.New(cfg.Server, deps)
			if err != nil {
				return err
			}

			log.Info().
				Str("address", cfg.Server.Address).
				Str("source", src.label).
				Str("solver", local.Solver().Name()).
				Msg("Starting planner server")
			return srv.ListenAndServe(ctx)
		},
	}

	sources.register(cmd)
	cmd.Flags().StringVar(&address, "address", "127.0.0.1:8080", "listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload model and policy files when they change")

	return cmd
}
