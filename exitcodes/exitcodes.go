// Package exitcodes maps run outcomes to the process exit codes the CLI
// reports, mirroring the 0/1/2 convention test scripts themselves follow:
// 0 when every targeted case passed, 1 when at least one case failed its
// validated condition, 2 when the engine or a script hit a runtime
// problem (launch failures, timeouts, invalid configuration).
package exitcodes

const (
	Success     = 0 // every targeted case passed
	TestFailure = 1 // at least one case failed
	RuntimeErr  = 2 // engine or script runtime problem
)
