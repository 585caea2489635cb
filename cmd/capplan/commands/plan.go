package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/capplan/pkg/config"
	"github.com/openfroyo/capplan/pkg/plan"
	"github.com/openfroyo/capplan/pkg/planner"
	"github.com/openfroyo/capplan/pkg/stores"
)

// factFlags are the fact source flags shared by plan, query and validate.
type factFlags struct {
	models   []string
	endpoint string
}

func (f *factFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.models, "model", "m", nil, "Mangle model files or globs (repeatable)")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "SPARQL endpoint URL instead of model files")
}

// apply overlays the flags on the facts section.
func (f *factFlags) apply(cfg *config.Config) {
	if f.endpoint != "" {
		cfg.Facts.Mode = config.ModeSPARQL
		cfg.Facts.Endpoint = f.endpoint
	}
	if len(f.models) > 0 {
		cfg.Facts.Mode = config.ModeFile
		cfg.Facts.Models = f.models
	}
}

func newPlanCommand() *cobra.Command {
	var (
		sources       factFlags
		required      string
		maxHappenings int
		parallel      int
		solverName    string
		problemOut    string
		modelOut      string
		planOut       string
		noMinimize    bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan for a required capability",
		Long: `Search for the shortest composition of provided capabilities that achieves
a required capability.

The search grows the horizon one happening at a time until a problem is
satisfiable or --max-happenings is reached. Inside the winning horizon the
number of invoked capabilities is minimized unless --no-minimize is given.
When no horizon is satisfiable, the minimal unsat core of the largest one is
printed and the command fails.`,
		Example: `  # Plan from model files
  capplan plan --model 'models/**/*.mg'

  # Plan for one of several required capabilities
  capplan plan --model models/robot.mg --required urn:robot:task

  # Plan against a SPARQL endpoint, solving four horizons at once
  capplan plan --endpoint http://localhost:3030/ds/query --parallel 4

  # Keep the deciding problem and the plan
  capplan plan --model models/door.mg --problem-out door.smt2 --plan-out door.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sources.apply(cfg)
			flags := cmd.Flags()
			if flags.Changed("max-happenings") {
				cfg.Planner.MaxHappenings = maxHappenings
			}
			if flags.Changed("parallel") {
				cfg.Planner.Parallelism = parallel
			}
			if flags.Changed("solver") {
				cfg.Planner.Solver = solverName
			}
			if noMinimize {
				cfg.Planner.Minimize = false
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			files := stores.FileSink{}
			if problemOut != "" {
				files[stores.ArtifactProblem] = problemOut
			}
			if modelOut != "" {
				files[stores.ArtifactModel] = modelOut
			}
			if planOut != "" {
				files[stores.ArtifactPlan] = planOut
			}

			ctx := cmd.Context()
			src, err := a.openFacts()
			if err != nil {
				return err
			}
			parts, err := a.newPlannerParts(ctx, files)
			if err != nil {
				return err
			}
			p, err := a.newPlanner(parts, src)
			if err != nil {
				return err
			}

			log.Debug().
				Str("source", src.label).
				Str("required", required).
				Int("max_happenings", cfg.Planner.MaxHappenings).
				Int("parallelism", cfg.Planner.Parallelism).
				Str("solver", p.Solver().Name()).
				Msg("Planning")

			result, err := p.Plan(a.tel.WithContext(ctx), planner.Request{Required: required})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printResult(out, result)
			}
			return result.Err()
		},
	}

	sources.register(cmd)
	cmd.Flags().StringVarP(&required, "required", "r", "", "required capability IRI (default: the only one in the model)")
	cmd.Flags().IntVar(&maxHappenings, "max-happenings", 20, "largest horizon to try")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "horizons solved concurrently")
	cmd.Flags().StringVar(&solverName, "solver", "auto", "solver back end (auto, z3, gini)")
	cmd.Flags().StringVar(&problemOut, "problem-out", "", "write the SMT-LIB2 problem to this file")
	cmd.Flags().StringVar(&modelOut, "model-out", "", "write the raw model as JSON to this file")
	cmd.Flags().StringVar(&planOut, "plan-out", "", "write the plan as JSON to this file")
	cmd.Flags().BoolVar(&noMinimize, "no-minimize", false, "do not minimize the number of invoked capabilities")

	return cmd
}

func printResult(w io.Writer, result *planner.Result) {
	switch result.Status {
	case planner.StatusExhausted:
		fmt.Fprintf(w, "No plan for %s within %d happenings (run %s)\n", result.Required, result.Horizon, result.RunID)
		if len(result.UnsatCore) > 0 {
			fmt.Fprintln(w, "Unsat core:")
			for _, label := range result.UnsatCore {
				fmt.Fprintf(w, "  %s\n", label)
			}
		}
		return
	case planner.StatusFound:
		fmt.Fprintf(w, "Plan for %s found at %d happenings (run %s)\n", result.Required, result.Horizon, result.RunID)
	}

	if result.Plan.Empty() {
		fmt.Fprintln(w, "The goal already holds initially; nothing to invoke.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tCAPABILITY\tINPUTS\tOUTPUTS")
		for _, step := range result.Plan.Steps {
			for _, app := range step.Applications {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", step.Number, app.CapabilityIRI, values(app.Inputs), values(app.Outputs))
			}
		}
		tw.Flush()
	}

	for _, v := range result.PolicyViolations {
		fmt.Fprintf(w, "Policy %s (%s): %s\n", v.Policy, v.Severity, v.Message)
	}
	for kind, loc := range result.Artifacts {
		fmt.Fprintf(w, "Wrote %s to %s\n", kind, loc)
	}
}

func values(vs []plan.PropertyValue) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.PropertyIRI + "=" + v.Value.String()
	}
	return strings.Join(parts, " ")
}
