package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mpvbridge/pkg/config"
	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/policy"
)

type validateResult struct {
	Path   string   `json:"path"`
	Kind   string   `json:"kind"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type validateReport struct {
	Results  []validateResult `json:"results"`
	Decision *policy.Decision `json:"decision,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var command string

	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate profiles and command policies",
		Long: `Validate player profiles and Rego command policies.

Paths ending in .rego and directories are checked as policies; any other
path is loaded as a profile, together with the policies it lists. Without
paths the profile given by --config is checked.

This command checks:
  - Profile syntax (YAML, JSON, CUE, Starlark)
  - Profile schema conformance
  - Policy compilation
  - Process settings given as flags`,
		Example: `  # Validate a profile and the policies it references
  mpvbridge validate profile.yaml

  # Validate a policy directory
  mpvbridge validate ./policies

  # Check how the policies judge a command
  mpvbridge validate ./policies --command '["loadfile","fd://3"]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 && configPath != "" {
				paths = []string{configPath}
			}

			report, err := runValidate(cmd.Context(), paths, command)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printValidateReport(cmd, report)
			}

			failed := 0
			for _, r := range report.Results {
				if !r.Valid {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("validation failed: %d of %d paths have errors", failed, len(report.Results))
			}
			if report.Decision != nil && !report.Decision.Allowed {
				return fmt.Errorf("command denied: %s", report.Decision.Reason())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "JSON command array to evaluate against the policies")

	return cmd
}

func runValidate(ctx context.Context, paths []string, command string) (*validateReport, error) {
	loader := config.NewLoader()
	if err := loader.ValidateSettings(ctx, currentSettings()); err != nil {
		return nil, err
	}

	engine, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	report := &validateReport{}
	for _, path := range paths {
		log.Debug().Str("path", path).Msg("Validating")

		if isPolicyPath(path) {
			report.Results = append(report.Results, policyResult(ctx, engine, path))
			continue
		}

		res := validateResult{Path: path, Kind: "profile", Valid: true}
		profile, err := loader.Load(ctx, path)
		if err != nil {
			res.Valid = false
			res.Errors = errorLines(err)
			report.Results = append(report.Results, res)
			continue
		}
		report.Results = append(report.Results, res)
		for _, p := range profile.Policies {
			report.Results = append(report.Results, policyResult(ctx, engine, p))
		}
	}

	if command != "" {
		args, err := libmpv.ParseJSON([]byte(command))
		if err != nil {
			return nil, fmt.Errorf("invalid --command: %w", err)
		}
		if args.Kind() != libmpv.NodeArray || args.Len() == 0 {
			return nil, fmt.Errorf("invalid --command: expected a non-empty JSON array")
		}
		items := args.Items()
		name, ok := items[0].Str()
		if !ok {
			return nil, fmt.Errorf("invalid --command: command name must be a string")
		}
		input := policy.CommandInput{
			Session:   "validate",
			Command:   name,
			Timestamp: time.Now(),
		}
		for _, a := range items[1:] {
			input.Args = append(input.Args, a.Interface())
		}
		if report.Decision, err = engine.EvaluateCommand(ctx, input); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func policyResult(ctx context.Context, engine *policy.Engine, path string) validateResult {
	res := validateResult{Path: path, Kind: "policy", Valid: true}
	if err := engine.LoadPolicies(ctx, []string{path}); err != nil {
		res.Valid = false
		res.Errors = errorLines(err)
	}
	return res
}

func isPolicyPath(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".rego") {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func errorLines(err error) []string {
	if verrs, ok := err.(config.ValidationErrors); ok {
		lines := make([]string, len(verrs))
		for i, e := range verrs {
			lines[i] = e.Error()
		}
		return lines
	}
	return []string{err.Error()}
}

func printValidateReport(cmd *cobra.Command, report *validateReport) {
	out := cmd.OutOrStdout()
	for _, r := range report.Results {
		if r.Valid {
			fmt.Fprintf(out, "ok    %s (%s)\n", r.Path, r.Kind)
			continue
		}
		fmt.Fprintf(out, "FAIL  %s (%s)\n", r.Path, r.Kind)
		for _, e := range r.Errors {
			fmt.Fprintf(out, "      %s\n", e)
		}
	}

	if d := report.Decision; d != nil {
		if d.Allowed {
			fmt.Fprintf(out, "command allowed (%d policies evaluated)\n", len(d.EvaluatedPolicies))
		}
		for _, v := range append(d.Violations, d.Warnings...) {
			fmt.Fprintf(out, "%-8s %s: %s\n", v.Severity, v.Policy, v.Message)
		}
	}
}
