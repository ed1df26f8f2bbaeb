package runner

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running quest-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration // How long async steps wait for the worker
	PollInterval      time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	ScenarioOverride  string // If set, overrides the scenario for all test cases
	Now               func() time.Time
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           WorkerTimeout,
		PollInterval:      PollInterval,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
		Now:               time.Now,
	}
}

func (r *Runner) api() API {
	return API{Client: r.Client, BaseURL: r.BaseURL}
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	if err := suite.Validate(); err != nil {
		return TestSuite{}, fmt.Errorf("%s: %w", filename, err)
	}

	return suite, nil
}

// Validate rejects steps that ask for something the runner cannot check.
func (ts *TestSuite) Validate() error {
	if ts.IsSequence() {
		if len(ts.Steps) > 0 {
			return fmt.Errorf("suite %q has both cases and steps", ts.Name)
		}
		return nil
	}
	if ts.Scenario == "" {
		return fmt.Errorf("suite %q has no scenario", ts.Name)
	}
	for i, step := range ts.Steps {
		if !step.Async {
			continue
		}
		if step.Expectations.Unlocked != nil {
			return fmt.Errorf("step %d (%s): unlocked cannot be checked on an async step", i, step.Name)
		}
		if len(step.Deliver) > 0 {
			return fmt.Errorf("step %d (%s): the worker delivers on async steps", i, step.Name)
		}
	}
	return nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite as a fresh user
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
		UserID:  "it-" + uuid.New().String(),
	}

	scenarioID := suite.Scenario
	if r.ScenarioOverride != "" {
		scenarioID = r.ScenarioOverride
	}
	if _, err := r.api().Instantiate(ctx, result.UserID, scenarioID, suite.TimeZone); err != nil {
		result.Error = fmt.Errorf("failed to instantiate narrative: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, result.UserID, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// progressEvents expands the step's events relative to now.
func progressEvents(step TestStep, now time.Time) ([]queue.ProgressEvent, error) {
	var out []queue.ProgressEvent
	for _, se := range step.Events {
		kind := narrative.NormalizeEventKind(se.Kind)
		if kind == "" {
			return nil, fmt.Errorf("event kind is required")
		}
		attr, err := narrative.ParseAttribute(se.Attribute)
		if err != nil {
			return nil, err
		}
		repeat := max(se.Repeat, 1)
		at := now.AddDate(0, 0, -se.DaysAgo).UTC()
		for range repeat {
			out = append(out, queue.ProgressEvent{
				Kind:       kind,
				Attribute:  attr,
				OccurredAt: at,
				Magnitude:  se.Magnitude,
			})
		}
	}
	return out, nil
}

func (r *Runner) runStep(ctx context.Context, userID string, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name, IsAsync: step.Async}
	fail := func(err error) TestResult {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	events, err := progressEvents(step, r.Now())
	if err != nil {
		return fail(fmt.Errorf("invalid step events: %w", err))
	}
	api := r.api()

	if step.Async {
		if len(events) > 0 || step.Tick {
			if _, err := api.PostProgressAsync(ctx, userID, events); err != nil {
				return fail(fmt.Errorf("failed to queue progress: %w", err))
			}
		}
		err := PollUntil(ctx, r.PollInterval, r.Timeout, func() error {
			return r.checkExpectations(ctx, userID, step.Expectations, nil)
		})
		if err != nil {
			return fail(fmt.Errorf("expectation failed: %w", err))
		}
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	if len(events) > 0 {
		if err := api.AppendEvents(ctx, userID, events); err != nil {
			return fail(fmt.Errorf("failed to append events: %w", err))
		}
	}

	if step.Tick {
		tick, err := api.Tick(ctx, userID)
		if err != nil {
			return fail(fmt.Errorf("failed to tick: %w", err))
		}
		result.Unlocked = make([]string, 0, len(tick.Unlocked))
		for _, rev := range tick.Unlocked {
			result.Unlocked = append(result.Unlocked, rev.QuestID)
		}
	}

	want := http.StatusOK
	if step.Expectations.DeliverStatus != nil {
		want = *step.Expectations.DeliverStatus
	}
	for _, questID := range step.Deliver {
		if err := api.Deliver(ctx, userID, questID, want); err != nil {
			return fail(fmt.Errorf("deliver %s: %w", questID, err))
		}
	}

	if err := r.checkExpectations(ctx, userID, step.Expectations, result.Unlocked); err != nil {
		return fail(fmt.Errorf("expectation failed: %w", err))
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// checkExpectations validates the expectations against the user's current
// narrative. unlocked is what this step's tick revealed.
func (r *Runner) checkExpectations(ctx context.Context, userID string, exp Expectations, unlocked []string) error {
	api := r.api()

	if exp.Unlocked != nil {
		got := unlocked
		if got == nil {
			got = []string{}
		}
		if !slices.Equal(got, *exp.Unlocked) {
			return fmt.Errorf("expected tick to unlock %v, got %v", *exp.Unlocked, got)
		}
	}

	if len(exp.Statuses) > 0 || exp.Chapter != nil {
		st, err := api.State(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get narrative state: %w", err)
		}
		if exp.Chapter != nil && st.CurrentChapter != *exp.Chapter {
			return fmt.Errorf("expected chapter %d, got %d", *exp.Chapter, st.CurrentChapter)
		}
		for questID, want := range exp.Statuses {
			q, ok := st.Quest(questID)
			if !ok {
				return fmt.Errorf("expected quest %s to exist, but it doesn't", questID)
			}
			if string(q.Status) != want {
				return fmt.Errorf("expected quest %s to be %s, got %s", questID, want, q.Status)
			}
		}
	}

	if exp.Undelivered != nil {
		reveals, err := api.Undelivered(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get undelivered quests: %w", err)
		}
		got := make([]string, 0, len(reveals))
		for _, rev := range reveals {
			got = append(got, rev.QuestID)
		}
		if !slices.Equal(got, *exp.Undelivered) {
			return fmt.Errorf("expected undelivered %v, got %v", *exp.Undelivered, got)
		}
	}

	if len(exp.Balances) > 0 {
		ledger, err := api.Ledger(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get ledger: %w", err)
		}
		for key, want := range exp.Balances {
			if got := ledger.Balances[key]; got != want {
				return fmt.Errorf("expected balance %s to be %d, got %d", key, want, got)
			}
		}
	}

	return nil
}
