package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/runweave/runweave/types"
)

// NodeRun is one schedulable instance of a suite node: the resolved case
// manifest, the merged inputs, and the effective timeout. Repeat expansion
// produces several instances of the same node.
type NodeRun struct {
	NodeID   string
	Instance int
	Case     *types.TestCaseManifest
	Inputs   map[string]any
	Timeout  time.Duration
}

// Key names the instance uniquely within one suite execution.
func (n NodeRun) Key() string {
	if n.Instance > 0 {
		return fmt.Sprintf("%s#%d", n.NodeID, n.Instance+1)
	}
	return n.NodeID
}

// CaseExecutor runs the full single-case flow (bind, resolve environment,
// snapshot, execute, persist) in isolation. Implementations must be safe
// for concurrent use. A returned error means the engine itself failed;
// anything the script did wrong is inside the record.
type CaseExecutor interface {
	ExecuteCase(ctx context.Context, node NodeRun, attempt int) (*types.ResultRecord, error)
}

// Scheduler runs suite node lists under the suite's controls.
type Scheduler struct {
	exec   CaseExecutor
	log    log.Logger
	tracer trace.Tracer
}

// NewScheduler creates a scheduler over the given case executor.
func NewScheduler(exec CaseExecutor, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New()
	}
	return &Scheduler{
		exec:   exec,
		log:    logger,
		tracer: otel.Tracer("runweave/scheduler"),
	}
}

// nodeWork is one queued instance plus its position in the outcome slice.
type nodeWork struct {
	node NodeRun
	slot int
}

// RunSuite executes the given node instances under the suite's controls
// and aggregates a group result. Nodes never started because an earlier
// failure stopped the suite (continueOnFailure=false) or because the run
// was cancelled are reported as Skipped.
func (s *Scheduler) RunSuite(ctx context.Context, suite *types.TestSuiteManifest, nodes []NodeRun) *types.GroupResult {
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.Identity))
	defer span.End()

	controls := suite.Controls
	group := &types.GroupResult{
		GroupID: suite.Identity,
		Kind:    types.KindTestSuite,
		Start:   time.Now().UTC(),
	}

	// Expand repeat: each iteration is an independent run instance.
	var queue []nodeWork
	for iteration := 0; iteration < controls.EffectiveRepeat(); iteration++ {
		for _, node := range nodes {
			instance := node
			instance.Instance = iteration
			queue = append(queue, nodeWork{node: instance, slot: len(queue)})
		}
	}

	outcomes := make([]types.NodeOutcome, len(queue))
	for i, w := range queue {
		outcomes[i] = types.NodeOutcome{
			NodeID: w.node.Key(),
			CaseID: w.node.Case.Identity,
			Status: types.StatusSkipped,
		}
	}

	maxParallel := controls.EffectiveMaxParallel()
	s.log.Info("Starting suite execution",
		"suite", suite.Identity.String(), "nodes", len(queue), "maxParallel", maxParallel)

	workChan := make(chan nodeWork)
	var stopped atomic.Bool
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < maxParallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				// Work already queued when the stop landed stays Skipped.
				if stopped.Load() || ctx.Err() != nil {
					continue
				}
				outcome := s.runNode(ctx, work.node, controls)
				mu.Lock()
				outcomes[work.slot] = outcome
				mu.Unlock()

				if !controls.ContinueOnFailure && isStop(outcome.Status) {
					stopped.Store(true)
				}
			}
		}()
	}

feed:
	for _, work := range queue {
		if stopped.Load() || ctx.Err() != nil {
			break feed
		}
		select {
		case workChan <- work:
		case <-ctx.Done():
			break feed
		}
	}
	close(workChan)
	wg.Wait()

	for _, outcome := range outcomes {
		group.Stats.Add(outcome.Status)
	}
	group.Nodes = outcomes
	group.End = time.Now().UTC()
	group.Status = group.Stats.Status()

	s.log.Info("Suite execution finished",
		"suite", suite.Identity.String(), "status", group.Status,
		"passed", group.Stats.Passed, "failed", group.Stats.Failed,
		"skipped", group.Stats.Skipped, "duration", group.Duration())
	return group
}

// runNode executes one instance, retrying on Error up to retryOnError
// additional attempts. Failed is never retried: a genuine assertion
// failure is a signal, not an infrastructure hiccup. Every attempt keeps
// its own run folder and index record.
func (s *Scheduler) runNode(ctx context.Context, node NodeRun, controls types.SuiteControls) types.NodeOutcome {
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("node %s", node.Key()))
	defer span.End()

	outcome := types.NodeOutcome{
		NodeID: node.Key(),
		CaseID: node.Case.Identity,
		Status: types.StatusSkipped,
	}

	maxAttempts := 1 + controls.RetryOnError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		record, err := s.exec.ExecuteCase(ctx, node, attempt)
		outcome.Attempts = attempt
		if err != nil {
			s.log.Error("Engine failure executing node",
				"node", node.Key(), "attempt", attempt, "error", err)
			outcome.Status = types.StatusError
			return outcome
		}

		if record.RunID != "" {
			outcome.RunIDs = append(outcome.RunIDs, record.RunID)
		}
		outcome.Status = record.Status

		if record.Status != types.StatusError || attempt == maxAttempts {
			return outcome
		}
		if ctx.Err() != nil {
			return outcome
		}
		s.log.Warn("Node errored, retrying",
			"node", node.Key(), "attempt", attempt, "maxAttempts", maxAttempts)
	}
	return outcome
}

// isStop reports whether a node outcome halts a suite that does not
// continue on failure.
func isStop(status types.RunStatus) bool {
	switch status {
	case types.StatusFailed, types.StatusError, types.StatusTimeout, types.StatusAborted:
		return true
	}
	return false
}
