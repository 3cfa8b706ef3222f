package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/runweave/runweave/environ"
	"github.com/runweave/runweave/runstore"
	"github.com/runweave/runweave/types"
)

// ModulePathEnvVar is injected into every script's environment so shared
// helper code can be located without manifest-level plumbing.
const ModulePathEnvVar = "RUNWEAVE_MODULE_PATH"

// stderrTailLimit bounds how much captured stderr is embedded into the
// structured error of a failing result. The full stream is always on disk.
const stderrTailLimit = 2048

// ScriptSpec is everything a single case execution needs. The run folder
// has already been allocated and snapshotted by the run store.
type ScriptSpec struct {
	Manifest *types.TestCaseManifest
	Args     []string
	Env      map[string]string
	Timeout  time.Duration
	Inputs   map[string]any
	Run      *runstore.RunContext
	// WorkingDir overrides the run folder as the script's working
	// directory. Suites may pin one via their environment block.
	WorkingDir string
}

// ScriptRunner launches test scripts under the configured interpreter.
type ScriptRunner struct {
	interpreter string
	modulePath  string
	meta        types.RunnerInfo
	log         log.Logger
}

// Config holds configuration for creating a ScriptRunner.
type Config struct {
	Log log.Logger
	// Interpreter is the script interpreter executable.
	Interpreter string
	// ModulePath is exported to scripts via ModulePathEnvVar.
	ModulePath    string
	EngineVersion string
}

// NewScriptRunner creates a runner and probes the interpreter version
// once for result metadata. The probe is best-effort; a missing
// interpreter surfaces later as a launch failure on the first run.
func NewScriptRunner(cfg Config) (*ScriptRunner, error) {
	if cfg.Interpreter == "" {
		return nil, fmt.Errorf("interpreter is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	// Host-identification variables win over the syscall when set.
	for _, key := range []string{"COMPUTERNAME", "HOSTNAME"} {
		if v := os.Getenv(key); v != "" {
			host = v
			break
		}
	}

	return &ScriptRunner{
		interpreter: cfg.Interpreter,
		modulePath:  cfg.ModulePath,
		log:         cfg.Log,
		meta: types.RunnerInfo{
			EngineVersion:      cfg.EngineVersion,
			InterpreterVersion: probeInterpreterVersion(cfg.Interpreter),
			HostName:           host,
		},
	}, nil
}

// Meta returns the runner metadata attached to every result record.
func (r *ScriptRunner) Meta() types.RunnerInfo { return r.meta }

// probeInterpreterVersion asks the interpreter for its version string.
func probeInterpreterVersion(interpreter string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, interpreter, "--version")
	cmd.Stdout = &out
	// A lingering child inheriting the stdout pipe must not stall the
	// probe past the deadline; abandon the pipe copy after a second.
	cmd.WaitDelay = time.Second
	err := cmd.Run()
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		return "unknown"
	}
	version := strings.TrimSpace(out.String())
	if version == "" {
		return "unknown"
	}
	return version
}

// Execute runs one test case's script and always returns a classified
// result record: execution problems (timeout, launch failure, unexpected
// exit code, cancellation) are captured in the record, never raised.
func (r *ScriptRunner) Execute(ctx context.Context, spec ScriptSpec) *types.ResultRecord {
	rc := spec.Run
	result := &types.ResultRecord{
		RunID:  rc.RunID,
		TestID: spec.Manifest.Identity,
		Start:  time.Now().UTC(),
		Inputs: spec.Inputs,
		Runner: r.meta,
	}
	finish := func(status types.RunStatus, exitCode int, runErr *types.RunError) *types.ResultRecord {
		result.End = time.Now().UTC()
		result.Status = status
		result.ExitCode = exitCode
		result.Error = runErr
		result.ReportFound = rc.ReportExists()
		if !result.ReportFound && status != types.StatusAborted {
			r.logEvent(rc, "warn", "report.missing", "script produced no artifacts/report.json", nil)
		}
		r.logEvent(rc, "info", "run.result", "run completed", map[string]any{
			"status": string(status), "exitCode": exitCode,
		})
		return result
	}

	if spec.Manifest.Privilege == types.PrivilegeAdminRequired && !isElevated() {
		r.logEvent(rc, "error", "privilege.denied", "case requires admin privileges", nil)
		return finish(types.StatusError, -1, &types.RunError{
			Type:    "PrivilegeError",
			Source:  types.ErrorSourceRunner,
			Message: fmt.Sprintf("test case %s requires admin privileges", spec.Manifest.Identity),
		})
	}
	if spec.Manifest.Privilege == types.PrivilegeAdminPreferred && !isElevated() {
		r.log.Warn("Case prefers admin privileges, continuing without",
			"test", spec.Manifest.Identity.String(), "run_id", rc.RunID)
	}

	stdout, err := os.Create(rc.StdoutPath)
	if err != nil {
		return finish(types.StatusError, -1, launchError(err))
	}
	defer stdout.Close()
	stderr, err := os.Create(rc.StderrPath)
	if err != nil {
		return finish(types.StatusError, -1, launchError(err))
	}
	defer stderr.Close()

	env := make(map[string]string, len(spec.Env)+1)
	for k, v := range spec.Env {
		env[k] = v
	}
	if r.modulePath != "" {
		env[ModulePathEnvVar] = r.modulePath
	}

	args := append([]string{"-NoProfile", "-NonInteractive", "-File", spec.Manifest.ScriptPath}, spec.Args...)
	cmd := exec.Command(r.interpreter, args...)
	cmd.Dir = rc.Dir
	if spec.WorkingDir != "" {
		cmd.Dir = spec.WorkingDir
	}
	cmd.Env = environ.Format(env)
	// Streamed, not buffered: partial output must survive abnormal
	// termination.
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcAttributes(cmd)

	r.log.Debug("Launching script",
		"run_id", rc.RunID, "test", spec.Manifest.Identity.String(),
		"interpreter", r.interpreter, "script", spec.Manifest.ScriptPath,
		"timeout", spec.Timeout)

	if err := cmd.Start(); err != nil {
		r.logEvent(rc, "error", "process.launchFailed", err.Error(), nil)
		return finish(types.StatusError, -1, launchError(err))
	}
	pid := cmd.Process.Pid
	r.logEvent(rc, "info", "process.started", "script process started", map[string]any{"pid": pid})

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		return r.classifyExit(rc, spec, finish, waitErr, cmd)

	case <-timer.C:
		r.logEvent(rc, "error", "run.timeout", "timeout elapsed, terminating process tree", map[string]any{
			"timeoutSec": spec.Timeout.Seconds(), "pid": pid,
		})
		r.killTree(pid)
		<-done
		return finish(types.StatusTimeout, -1, &types.RunError{
			Type:    "TimeoutError",
			Source:  types.ErrorSourceRunner,
			Message: fmt.Sprintf("script exceeded timeout of %s", spec.Timeout),
		})

	case <-ctx.Done():
		r.logEvent(rc, "warn", "run.aborted", "cancellation requested, terminating process tree", map[string]any{"pid": pid})
		r.killTree(pid)
		<-done
		return finish(types.StatusAborted, -1, &types.RunError{
			Type:    "AbortedError",
			Source:  types.ErrorSourceRunner,
			Message: "run aborted by external cancellation",
		})
	}
}

// classifyExit maps a completed process to a result record via the
// 0/1/2 exit-code convention.
func (r *ScriptRunner) classifyExit(
	rc *runstore.RunContext,
	spec ScriptSpec,
	finish func(types.RunStatus, int, *types.RunError) *types.ResultRecord,
	waitErr error,
	cmd *exec.Cmd,
) *types.ResultRecord {
	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return finish(types.StatusError, -1, &types.RunError{
				Type:    "WaitError",
				Source:  types.ErrorSourceRunner,
				Message: waitErr.Error(),
			})
		}
		exitCode = exitErr.ExitCode()
		if exitCode < 0 {
			// Killed by a signal we did not send.
			return finish(types.StatusError, exitCode, &types.RunError{
				Type:    "SignalError",
				Source:  types.ErrorSourceRunner,
				Message: exitErr.Error(),
			})
		}
	} else if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	r.logEvent(rc, "info", "process.exit", "script process exited", map[string]any{"exitCode": exitCode})

	status := types.StatusFromExitCode(exitCode)
	var runErr *types.RunError
	switch status {
	case types.StatusFailed:
		runErr = &types.RunError{
			Type:    "AssertionFailed",
			Source:  types.ErrorSourceScript,
			Message: "script reported the validated condition as false",
			Stack:   r.stderrTail(rc),
		}
	case types.StatusError:
		errType := "ScriptError"
		if exitCode != 2 {
			errType = "UnexpectedExitCode"
		}
		runErr = &types.RunError{
			Type:    errType,
			Source:  types.ErrorSourceScript,
			Message: fmt.Sprintf("script exited with code %d", exitCode),
			Stack:   r.stderrTail(rc),
		}
	}
	return finish(status, exitCode, runErr)
}

// stderrTail returns the end of the captured stderr stream with ANSI
// escapes stripped, for embedding in the structured error.
func (r *ScriptRunner) stderrTail(rc *runstore.RunContext) string {
	data, err := os.ReadFile(rc.StderrPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	if len(data) > stderrTailLimit {
		data = data[len(data)-stderrTailLimit:]
	}
	return strings.TrimSpace(stripansi.Strip(string(data)))
}

// killTree terminates the process and its descendants. Platform-specific.
func (r *ScriptRunner) killTree(pid int) {
	if err := terminateTree(pid); err != nil {
		r.log.Warn("Terminating process tree", "pid", pid, "error", err)
	}
}

func (r *ScriptRunner) logEvent(rc *runstore.RunContext, level, code, message string, data map[string]any) {
	if rc.Events == nil {
		return
	}
	if err := rc.Events.Append(level, code, message, data); err != nil {
		r.log.Warn("Appending run event", "run_id", rc.RunID, "code", code, "error", err)
	}
}

func launchError(err error) *types.RunError {
	return &types.RunError{
		Type:    "LaunchError",
		Source:  types.ErrorSourceRunner,
		Message: err.Error(),
	}
}
