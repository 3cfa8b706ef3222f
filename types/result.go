package types

import "time"

// RunStatus classifies the outcome of one executed test case.
type RunStatus string

const (
	StatusPassed  RunStatus = "Passed"
	StatusFailed  RunStatus = "Failed"
	StatusError   RunStatus = "Error"
	StatusTimeout RunStatus = "Timeout"
	StatusAborted RunStatus = "Aborted"

	// StatusSkipped never appears on a case result record; it marks suite
	// nodes that were not scheduled because an earlier node stopped the run.
	StatusSkipped RunStatus = "Skipped"
)

// StatusFromExitCode maps the script exit-code convention to a status.
// Timeout and Aborted are reserved for the timer and cancellation paths
// and never derived from an exit code.
func StatusFromExitCode(code int) RunStatus {
	switch code {
	case 0:
		return StatusPassed
	case 1:
		return StatusFailed
	case 2:
		return StatusError
	default:
		return StatusError
	}
}

// ErrorSource identifies who produced a run error.
type ErrorSource string

const (
	ErrorSourceRunner ErrorSource = "runner"
	ErrorSourceScript ErrorSource = "script"
)

// RunError is the structured error attached to a non-passing result.
type RunError struct {
	Type    string      `json:"type"`
	Source  ErrorSource `json:"source"`
	Message string      `json:"message"`
	Stack   string      `json:"stack,omitempty"`
}

// RunnerInfo records the execution environment of a run.
type RunnerInfo struct {
	EngineVersion      string `json:"engineVersion"`
	InterpreterVersion string `json:"interpreterVersion"`
	HostName           string `json:"hostName"`
}

// ResultRecord is the persisted outcome of one executed test case.
type ResultRecord struct {
	RunID       string         `json:"runId"`
	TestID      Identity       `json:"testId"`
	Status      RunStatus      `json:"status"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	ExitCode    int            `json:"exitCode"`
	Error       *RunError      `json:"error,omitempty"`
	Inputs      map[string]any `json:"inputs"`
	ReportFound bool           `json:"reportFound"`
	Runner      RunnerInfo     `json:"runner"`
}

// Duration returns the wall-clock span of the run.
func (r *ResultRecord) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Stats counts child outcomes per status.
type Stats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Timeout int `json:"timeout"`
	Aborted int `json:"aborted"`
	Skipped int `json:"skipped"`
}

// Add counts one child outcome.
func (s *Stats) Add(status RunStatus) {
	s.Total++
	switch status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusError:
		s.Errored++
	case StatusTimeout:
		s.Timeout++
	case StatusAborted:
		s.Aborted++
	case StatusSkipped:
		s.Skipped++
	}
}

// Status derives the aggregate status for a group from its counts.
func (s Stats) Status() RunStatus {
	switch {
	case s.Aborted > 0:
		return StatusAborted
	case s.Timeout > 0 || s.Errored > 0:
		return StatusError
	case s.Failed > 0:
		return StatusFailed
	case s.Passed > 0:
		return StatusPassed
	default:
		return StatusSkipped
	}
}

// NodeOutcome records the final state of one suite node instance,
// including the run ids of every attempt when retries happened.
type NodeOutcome struct {
	NodeID   string    `json:"nodeId"`
	CaseID   Identity  `json:"caseId"`
	Status   RunStatus `json:"status"`
	RunIDs   []string  `json:"runIds,omitempty"`
	Attempts int       `json:"attempts"`
}

// GroupResult aggregates child runs of a suite or plan execution. It does
// not redefine case-level semantics.
type GroupResult struct {
	GroupID  Identity      `json:"groupId"`
	Kind     ManifestKind  `json:"kind"`
	Status   RunStatus     `json:"status"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Stats    Stats         `json:"stats"`
	Nodes    []NodeOutcome `json:"nodes,omitempty"`
	Children []GroupResult `json:"children,omitempty"`
}

// Duration returns the wall-clock span of the group execution.
func (g *GroupResult) Duration() time.Duration {
	return g.End.Sub(g.Start)
}
