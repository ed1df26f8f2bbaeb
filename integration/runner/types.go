package runner

import (
	"time"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name     string     `yaml:"name"`
	Scenario string     `yaml:"scenario,omitempty"`  // Used for regular tests
	TimeZone string     `yaml:"time_zone,omitempty"` // IANA zone the user's days are counted in
	Steps    []TestStep `yaml:"steps,omitempty"`     // Used for regular tests
	Cases    []string   `yaml:"cases,omitempty"`     // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep reports events, optionally ticks and delivers, then checks the
// user's narrative.
//
// With async set the events go through the progress queue and the step
// polls until the worker has produced the expected state.
type TestStep struct {
	Name         string       `yaml:"name,omitempty"`
	Events       []StepEvent  `yaml:"events,omitempty"`
	Async        bool         `yaml:"async,omitempty"`
	Tick         bool         `yaml:"tick,omitempty"`
	Deliver      []string     `yaml:"deliver,omitempty"`
	Expectations Expectations `yaml:"expect"`
}

// StepEvent is a progress event relative to the time the step runs.
type StepEvent struct {
	Kind      string `yaml:"kind"`
	Attribute string `yaml:"attribute,omitempty"`
	DaysAgo   int    `yaml:"days_ago,omitempty"`
	Magnitude int    `yaml:"magnitude,omitempty"`
	Repeat    int    `yaml:"repeat,omitempty"` // Report the same event this many times (default 1)
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Quests revealed by this step's tick, in order
	Unlocked *[]string `yaml:"unlocked,omitempty"`
	// Quest id to status ("pending", "unlocked", "consumed")
	Statuses map[string]string `yaml:"statuses,omitempty"`
	Chapter  *int              `yaml:"chapter,omitempty"`
	// Exact balances for the listed keys; unlisted keys are not checked
	Balances map[string]int64 `yaml:"balances,omitempty"`
	// Quests waiting for delivery, in order
	Undelivered *[]string `yaml:"undelivered,omitempty"`
	// HTTP status every deliver in this step must return (default 200)
	DeliverStatus *int `yaml:"deliver_status,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	Unlocked []string
	IsAsync  bool // True if the step waited on the worker
}

// TestJob represents a test suite to be executed by a worker
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	UserID   string // User created for this run
}
