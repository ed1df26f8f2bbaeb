package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jwebster45206/quest-engine/pkg/conditionals"
	"github.com/jwebster45206/quest-engine/pkg/scenario"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		dir     string
		verbose bool
	)
	flagSet := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&dir, "dir", "d", "", "validate every scenario file in this directory")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "print each quest's trigger")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: validate [--dir DIR] [file ...]\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	files := flagSet.Args()
	if dir != "" {
		found, err := scenarioFiles(dir)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
			return 1
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		flagSet.Usage()
		return 2
	}

	validator := &ScenarioValidator{out: stdout, verbose: verbose}
	var scenarios []*scenario.Scenario
	failed := false
	for _, f := range files {
		s, err := validator.validateFile(f)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		scenarios = append(scenarios, s)
	}
	if !failed {
		if _, err := scenario.NewRegistry(scenarios...); err != nil {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
			failed = true
		}
	}
	if failed {
		return 1
	}

	fmt.Fprintf(stdout, "%d scenario file(s) valid!\n", len(files))
	return 0
}

func scenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && scenario.IsScenarioFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

type ScenarioValidator struct {
	out     io.Writer
	verbose bool
}

func (v *ScenarioValidator) validateFile(filename string) (*scenario.Scenario, error) {
	fmt.Fprintf(v.out, "Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !scenario.IsScenarioFile(baseName) {
		return nil, fmt.Errorf("scenario file must have a .json, .yaml or .yml extension: %s", baseName)
	}
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	// Allow 'x.' prefix for experimental scenarios
	if !scenario.ValidID(strings.TrimPrefix(nameWithoutExt, "x.")) {
		return nil, fmt.Errorf("scenario filename '%s' must be lowercase snake_case (e.g., my_scenario.json, not my-scenario.json or MyScenario.json)", baseName)
	}

	s, err := scenario.ParseFile(filename)
	if err != nil {
		return nil, err
	}

	for _, w := range warnings(s) {
		fmt.Fprintf(v.out, "  warning: %s\n", w)
	}
	if v.verbose {
		for _, q := range s.Quests {
			fmt.Fprintf(v.out, "  %s (%q): %s\n", q.ID, q.Title, conditionals.Describe(q.Trigger))
		}
	}
	return s, nil
}

// warnings lists problems that load but are probably mistakes.
func warnings(s *scenario.Scenario) []string {
	var out []string
	for _, q := range s.Quests {
		if strings.TrimSpace(q.Narrative.Text) == "" {
			out = append(out, fmt.Sprintf("quest %s has no fallback text; it stays undelivered while the renderer is down", q.ID))
		}
		if q.Reward.IsZero() {
			out = append(out, fmt.Sprintf("quest %s has no reward", q.ID))
		}
	}
	return out
}
