// Package runner executes test-case scripts as child processes and
// schedules suite and plan runs.
//
// A single case run launches the configured interpreter with arguments
// built from the bound parameters, streams stdout/stderr to the run
// folder as they arrive, and races completion against the case timeout.
// The scheduler layers suite semantics on top: a worker pool bounded by
// maxParallel, repeat expansion, retry-on-error, continue-on-failure and
// cooperative cancellation. Process-tree termination and privilege probes
// are platform-specific and live behind small per-platform files.
package runner
