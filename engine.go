package runweave

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/runweave/runweave/binder"
	"github.com/runweave/runweave/discovery"
	"github.com/runweave/runweave/environ"
	"github.com/runweave/runweave/metrics"
	"github.com/runweave/runweave/reporting"
	"github.com/runweave/runweave/runner"
	"github.com/runweave/runweave/runstore"
	"github.com/runweave/runweave/types"
)

// Engine ties discovery, binding, environment resolution, execution and
// the run store together behind two entry points: New (which discovers
// and validates the manifest corpus) and Run.
type Engine struct {
	cfg      *Config
	log      log.Logger
	index    *discovery.Index
	store    *runstore.Store
	script   *runner.ScriptRunner
	resolver *environ.Resolver
	sinks    []reporting.Sink
	tracer   trace.Tracer
}

// RunOutcome is the result of one Run invocation. Exactly one of Case
// and Group is set, matching the requested target kind.
type RunOutcome struct {
	Case  *types.ResultRecord
	Group *types.GroupResult
}

// Status returns the overall status of the outcome.
func (o *RunOutcome) Status() types.RunStatus {
	if o.Case != nil {
		return o.Case.Status
	}
	if o.Group != nil {
		return o.Group.Status
	}
	return types.StatusSkipped
}

// New discovers and validates the manifest corpus and prepares the
// execution pipeline. Discovery is all-or-nothing: any validation
// violation fails construction before a single run starts.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}

	index, err := discovery.Discover(ctx, discovery.Config{
		Log:       logger,
		CaseRoot:  cfg.CaseRoot,
		SuiteRoot: cfg.SuiteRoot,
		PlanRoot:  cfg.PlanRoot,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	logger.Info("Discovered manifests",
		"cases", len(index.Cases), "suites", len(index.Suites), "plans", len(index.Plans))

	store, err := runstore.NewStore(cfg.RunsRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	script, err := runner.NewScriptRunner(runner.Config{
		Log:           logger,
		Interpreter:   cfg.Interpreter,
		ModulePath:    cfg.ModulePath,
		EngineVersion: cfg.EngineVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create script runner: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		log:      logger,
		index:    index,
		store:    store,
		script:   script,
		resolver: environ.NewResolver(nil),
		sinks: []reporting.Sink{
			reporting.NewTextSummarySink(store.Root(), logger),
			reporting.NewJSONSummarySink(store.Root(), logger),
		},
		tracer: otel.Tracer("runweave/engine"),
	}, nil
}

// Index exposes the validated manifest corpus.
func (e *Engine) Index() *discovery.Index { return e.index }

// Store exposes the run store for history queries.
func (e *Engine) Store() *runstore.Store { return e.store }

// Run executes one run request to completion and returns the outcome.
// Script-level failures are inside the outcome; a non-nil error means
// the engine itself could not carry the run out.
func (e *Engine) Run(ctx context.Context, req types.RunRequest) (*RunOutcome, error) {
	switch req.Kind {
	case types.TargetTestCase:
		record, err := e.runCase(ctx, req)
		if err != nil {
			return nil, err
		}
		return &RunOutcome{Case: record}, nil
	case types.TargetSuite:
		group, err := e.runSuite(ctx, req)
		if err != nil {
			return nil, err
		}
		return &RunOutcome{Group: group}, nil
	case types.TargetPlan:
		group, err := e.runPlan(ctx, req)
		if err != nil {
			return nil, err
		}
		return &RunOutcome{Group: group}, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q", req.Kind)
	}
}

func (e *Engine) runCase(ctx context.Context, req types.RunRequest) (*types.ResultRecord, error) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("case %s", req.Target))
	defer span.End()

	c, err := e.findCase(req.Target)
	if err != nil {
		return nil, err
	}
	exec := &caseExecutor{
		engine:   e,
		scope:    environ.ScopeCase,
		override: req.Env,
		strict:   true,
	}
	node := runner.NodeRun{
		NodeID:  c.ID,
		Case:    c,
		Inputs:  req.Parameters,
		Timeout: c.Timeout(),
	}
	return exec.ExecuteCase(ctx, node, 1)
}

func (e *Engine) runSuite(ctx context.Context, req types.RunRequest) (*types.GroupResult, error) {
	suite, err := e.index.Suite(req.Target.String())
	if err != nil {
		return nil, err
	}
	group, err := e.executeSuite(ctx, suite, req, nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordGroup(group.GroupID.String(), types.KindTestSuite, group.Status)
	e.writeSummaries(group)
	return group, nil
}

func (e *Engine) runPlan(ctx context.Context, req types.RunRequest) (*types.GroupResult, error) {
	plan, err := e.findPlan(req.Target)
	if err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("plan %s", plan.Identity))
	defer span.End()

	group := &types.GroupResult{
		GroupID: plan.Identity,
		Kind:    types.KindTestPlan,
		Start:   time.Now().UTC(),
	}
	// Plan suites run strictly in declaration order. Concurrency lives
	// inside each suite, bounded by its own maxParallel.
	for _, ref := range plan.Suites {
		suite, err := e.index.Suite(ref)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", plan.Identity, err)
		}
		child, err := e.executeSuite(ctx, suite, req, plan)
		if err != nil {
			return nil, err
		}
		group.Children = append(group.Children, *child)
		for _, node := range child.Nodes {
			group.Stats.Add(node.Status)
		}
		if ctx.Err() != nil {
			break
		}
	}
	group.End = time.Now().UTC()
	group.Status = group.Stats.Status()
	metrics.RecordGroup(group.GroupID.String(), types.KindTestPlan, group.Status)
	e.log.Info("Plan completed",
		"plan", plan.Identity.String(), "status", group.Status,
		"suites", len(group.Children), "total", group.Stats.Total)
	e.writeSummaries(group)
	return group, nil
}

// writeSummaries persists group summaries through the configured sinks.
// Summary failures never sink a completed run.
func (e *Engine) writeSummaries(group *types.GroupResult) {
	for _, sink := range e.sinks {
		if err := sink.Write(group); err != nil {
			e.log.Warn("Failed to write group summary", "group", group.GroupID.String(), "err", err)
			metrics.RecordError("summary_write")
		}
	}
}

// executeSuite runs one suite, either standalone or as a plan child. The
// plan pointer selects the environment precedence for the scope.
func (e *Engine) executeSuite(ctx context.Context, suite *types.TestSuiteManifest, req types.RunRequest, plan *types.TestPlanManifest) (*types.GroupResult, error) {
	scope := environ.ScopeSuite
	var planEnv *types.PlanEnvironment
	if plan != nil {
		scope = environ.ScopePlan
		planEnv = &plan.Environment
	}
	exec := &caseExecutor{
		engine:     e,
		scope:      scope,
		plan:       planEnv,
		suite:      &suite.Environment,
		override:   req.Env,
		workingDir: suite.Environment.WorkingDir,
	}

	nodes := make([]runner.NodeRun, 0, len(suite.Nodes))
	for _, n := range suite.Nodes {
		c, err := e.index.ResolveRef(n.Ref)
		if err != nil {
			return nil, fmt.Errorf("suite %s node %s: %w", suite.Identity, n.NodeID, err)
		}
		nodes = append(nodes, runner.NodeRun{
			NodeID:  n.NodeID,
			Case:    c,
			Inputs:  mergeInputs(n.Inputs, req.Parameters),
			Timeout: nodeTimeout(c, suite.Controls),
		})
	}

	sched := runner.NewScheduler(exec, e.log)
	return sched.RunSuite(ctx, suite, nodes), nil
}

// nodeTimeout applies the suite's timeout policy to one node.
func nodeTimeout(c *types.TestCaseManifest, controls types.SuiteControls) time.Duration {
	if controls.TimeoutPolicy == types.TimeoutPolicySuite && controls.SuiteTimeoutSec > 0 {
		return time.Duration(controls.SuiteTimeoutSec) * time.Second
	}
	return c.Timeout()
}

// mergeInputs layers run-time parameter overrides over a node's pinned
// inputs. Neither map is mutated.
func mergeInputs(nodeInputs, overrides map[string]any) map[string]any {
	if len(overrides) == 0 {
		return nodeInputs
	}
	merged := make(map[string]any, len(nodeInputs)+len(overrides))
	for k, v := range nodeInputs {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// findCase resolves a case target. A target without a version must match
// exactly one discovered case.
func (e *Engine) findCase(target types.Identity) (*types.TestCaseManifest, error) {
	if target.Version != "" {
		if c, ok := e.index.Case(target); ok {
			return c, nil
		}
		return nil, fmt.Errorf("test case %q not found", target)
	}
	var found *types.TestCaseManifest
	for _, c := range e.index.Cases {
		if c.ID != target.ID {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("test case reference %q matches multiple versions", target.ID)
		}
		found = c
	}
	if found == nil {
		return nil, fmt.Errorf("test case %q not found", target.ID)
	}
	return found, nil
}

// findPlan resolves a plan target, with the same bare-id uniqueness rule
// as findCase.
func (e *Engine) findPlan(target types.Identity) (*types.TestPlanManifest, error) {
	if target.Version != "" {
		if p, ok := e.index.Plan(target); ok {
			return p, nil
		}
		return nil, fmt.Errorf("test plan %q not found", target)
	}
	var found *types.TestPlanManifest
	for _, p := range e.index.Plans {
		if p.ID != target.ID {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("test plan reference %q matches multiple versions", target.ID)
		}
		found = p
	}
	if found == nil {
		return nil, fmt.Errorf("test plan %q not found", target.ID)
	}
	return found, nil
}

// caseExecutor carries the per-scope context needed to run one case:
// which environment layers apply and whether pre-launch failures are
// returned as errors (standalone runs) or folded into Error records
// (suite runs, where one bad node must not sink its siblings).
type caseExecutor struct {
	engine     *Engine
	scope      environ.Scope
	plan       *types.PlanEnvironment
	suite      *types.SuiteEnvironment
	override   map[string]string
	workingDir string
	strict     bool
}

// ExecuteCase runs the full single-case pipeline: bind parameters,
// resolve the environment, snapshot into a fresh run folder, execute,
// persist the result and append the index entry.
func (x *caseExecutor) ExecuteCase(ctx context.Context, node runner.NodeRun, attempt int) (*types.ResultRecord, error) {
	e := x.engine

	bound, err := binder.Bind(node.Case.Parameters, node.Inputs)
	if err != nil {
		return x.preLaunchFailure(node, "BindError", err)
	}
	env, err := e.resolver.Resolve(environ.Layers(x.scope, x.plan, x.suite, x.override)...)
	if err != nil {
		return x.preLaunchFailure(node, "EnvironmentError", err)
	}

	inputs := binder.Plain(bound)
	rc, err := e.store.CreateRun(node.Case, inputs, env)
	if err != nil {
		return nil, fmt.Errorf("failed to create run for %s: %w", node.Case.Identity, err)
	}
	e.log.Info("Starting test case",
		"test", node.Case.Identity.String(), "run_id", rc.RunID,
		"node", node.Key(), "attempt", attempt)

	record := e.script.Execute(ctx, runner.ScriptSpec{
		Manifest:   node.Case,
		Args:       runner.BuildArgs(node.Case.Parameters, bound),
		Env:        env,
		Timeout:    node.Timeout,
		Inputs:     inputs,
		Run:        rc,
		WorkingDir: x.workingDir,
	})
	if err := e.store.WriteResult(rc, record, attempt); err != nil {
		metrics.RecordError("result_write")
		return record, fmt.Errorf("failed to persist result for run %s: %w", rc.RunID, err)
	}

	metrics.RecordRun(record.TestID.String(), record.Status, record.End.Sub(record.Start))
	e.log.Info("Test case finished",
		"test", record.TestID.String(), "run_id", record.RunID,
		"status", record.Status, "exit_code", record.ExitCode)
	return record, nil
}

// preLaunchFailure handles bind and environment errors, which happen
// before any run folder exists. Strict mode surfaces them to the caller;
// otherwise they become an Error record attributed to the runner.
func (x *caseExecutor) preLaunchFailure(node runner.NodeRun, errType string, err error) (*types.ResultRecord, error) {
	if x.strict {
		return nil, err
	}
	x.engine.log.Error("Pre-launch failure",
		"test", node.Case.Identity.String(), "node", node.Key(), "err", err)
	metrics.RecordError("pre_launch")
	now := time.Now().UTC()
	return &types.ResultRecord{
		TestID: node.Case.Identity,
		Status: types.StatusError,
		Start:  now,
		End:    now,
		Error: &types.RunError{
			Type:    errType,
			Source:  types.ErrorSourceRunner,
			Message: err.Error(),
		},
		Inputs: node.Inputs,
		Runner: x.engine.script.Meta(),
	}, nil
}
