package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/capplan/pkg/config"
	"github.com/openfroyo/capplan/pkg/constraints"
	"github.com/openfroyo/capplan/pkg/equivalence"
	"github.com/openfroyo/capplan/pkg/model"
	"github.com/openfroyo/capplan/pkg/openmath"
)

// modelReport summarizes a validated capability model.
type modelReport struct {
	Source       string `json:"source"`
	Required     string `json:"required_capability"`
	Properties   int    `json:"properties"`
	Capabilities int    `json:"capabilities"`
	Resources    int    `json:"resources"`
	Expressions  int    `json:"expressions"`
	Declarations int    `json:"declarations"`
	Assertions   int    `json:"assertions"`
	Boolean      bool   `json:"boolean"`
}

func newValidateCommand() *cobra.Command {
	var (
		sources  factFlags
		required string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the capability model",
		Long: `Validate the configuration file and, when a fact source is configured, the
capability model.

This command checks:
  - the configuration against its schema and field constraints
  - that every catalog query answers and a required capability is selected
  - that the property, capability and resource registries can be declared
  - that every constraint expression flattens
  - that a one-happening problem can be assembled`,
		Example: `  # Validate a configuration file
  capplan validate --config capplan.yaml

  # Validate model files
  capplan validate --model 'models/*.mg'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sources.apply(cfg)

			out := cmd.OutOrStdout()
			if cfg.Facts.Mode == config.ModeFile && len(cfg.Facts.Models) == 0 {
				if err := cfg.Validate(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Configuration is valid.")
				return nil
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.openFacts()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			f, err := model.Fetch(ctx, src.store, required)
			if err != nil {
				return err
			}
			forest := openmath.Build(f.Expressions)
			for _, root := range forest.Roots() {
				if _, err := openmath.Flatten(forest, root, 0, 0); err != nil {
					return err
				}
			}
			session := equivalence.NewSession(a.logger, f.EquivalenceSource())
			cctx, err := constraints.NewContext(f, session, forest, 1)
			if err != nil {
				return err
			}
			problem, err := constraints.Assemble(cctx, constraints.Default(), nil)
			if err != nil {
				return err
			}

			report := modelReport{
				Source:       src.label,
				Required:     f.Required,
				Properties:   cctx.Properties.Len(),
				Capabilities: cctx.Capabilities.Len(),
				Resources:    cctx.Resources.Len(),
				Expressions:  forest.Len(),
				Declarations: len(problem.Declarations()),
				Assertions:   len(problem.Assertions()),
				Boolean:      problem.IsBoolean(),
			}
			log.Debug().Interface("report", report).Msg("Model validated")

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "Model %s is valid.\n", report.Source)
			fmt.Fprintf(out, "  required capability: %s\n", report.Required)
			fmt.Fprintf(out, "  properties: %d, capabilities: %d, resources: %d\n",
				report.Properties, report.Capabilities, report.Resources)
			fmt.Fprintf(out, "  expression nodes: %d\n", report.Expressions)
			fmt.Fprintf(out, "  one happening: %d declarations, %d assertions (boolean: %t)\n",
				report.Declarations, report.Assertions, report.Boolean)
			return nil
		},
	}

	sources.register(cmd)
	cmd.Flags().StringVarP(&required, "required", "r", "", "required capability IRI (default: the only one in the model)")

	return cmd
}
