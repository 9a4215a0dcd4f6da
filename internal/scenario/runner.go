package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pktharness/internal/alloc"
	"pktharness/internal/config"
	"pktharness/internal/infra/netdev"
	"pktharness/internal/infra/sqlite"
	"pktharness/internal/logmatch"
	"pktharness/internal/metrics"
	"pktharness/internal/orchestrator"
	"pktharness/internal/poll"
	"pktharness/internal/replay"
	"pktharness/internal/session"
	"pktharness/internal/telemetry"
)

// Step names, in execution order.
const (
	StepAllocate = "allocate"
	StepStart    = "start"
	StepReplay   = "replay"
	StepMetrics  = "metrics"
	StepVerify   = "verify"
	StepTeardown = "teardown"
)

var plan = []string{StepAllocate, StepStart, StepReplay, StepMetrics, StepVerify, StepTeardown}

// Replayer pushes a capture onto an interface.
type Replayer interface {
	Replay(ctx context.Context, iface, path string) (replay.Report, error)
}

// MetricsChecker queries an agent's API.
type MetricsChecker interface {
	CheckEndpoints(ctx context.Context, endpoints []string, port int, schemaPath string, timeout time.Duration) ([]metrics.Result, bool, error)
	Get(ctx context.Context, endpoint string, port int, timeout time.Duration) (metrics.Response, bool, error)
}

// Journal stores finished runs.
type Journal interface {
	Record(run sqlite.Run) (int64, error)
}

// Deps are the collaborators a Runner drives.
type Deps struct {
	Runtime   orchestrator.Runtime
	Links     netdev.Manager
	Allocator *alloc.Allocator
	Replayer  Replayer
	Metrics   MetricsChecker
	// Journal is optional.
	Journal Journal
	// Tracer defaults to the global provider.
	Tracer trace.Tracer
	Clock  poll.Clock
}

// Runner executes scenarios.
type Runner struct {
	cfg  config.Config
	deps Deps
}

// NewRunner returns a Runner for cfg.
func NewRunner(cfg config.Config, deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = poll.RealClock{}
	}
	if deps.Allocator == nil {
		deps.Allocator = alloc.New(cfg.PortAttempts, cfg.NameSuffixLength)
	}
	return &Runner{cfg: cfg, deps: deps}
}

// run is the state of one Run call.
type run struct {
	*Runner
	sc   Scenario
	op   *telemetry.Operation
	sess *session.Session
	orch *orchestrator.Orchestrator
	res  Result
}

// Run executes sc. The session is torn down whatever happens, and teardown
// errors are joined to the scenario error rather than replacing it.
func (r *Runner) Run(ctx context.Context, sc Scenario) (res Result, err error) {
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}

	sessionID, err := alloc.RandomString(8)
	if err != nil {
		return Result{}, err
	}
	iface := r.cfg.Interface
	if iface == "" {
		if iface, err = r.deps.Allocator.InterfaceName(r.cfg.InterfacePrefix); err != nil {
			return Result{}, fmt.Errorf("name interface: %w", err)
		}
	}

	op, err := telemetry.Begin(ctx, r.deps.Tracer, "scenario "+sc.Name, plan,
		attribute.String(telemetry.SessionKey, sessionID),
		attribute.String(telemetry.InterfaceKey, iface))
	if err != nil {
		return Result{}, err
	}
	st := &run{
		Runner: r,
		sc:     sc,
		op:     op,
		res:    Result{Session: sessionID, Interface: iface, StartedAt: r.deps.Clock.Now()},
	}
	ctx = op.Context()

	defer func() {
		err = errors.Join(err, st.teardown(ctx))
		st.res.Duration = r.deps.Clock.Now().Sub(st.res.StartedAt)
		st.record(err)
		op.End(err)
		res = st.res
	}()

	slog.Info("Running scenario.", "scenario", sc.Name, "session", sessionID, "interface", iface)
	if err := op.Step(ctx, StepAllocate, st.allocate); err != nil {
		return st.res, err
	}
	if err := op.Step(ctx, StepStart, st.start); err != nil {
		return st.res, err
	}
	if err := op.Step(ctx, StepReplay, st.replay); err != nil {
		return st.res, err
	}
	if !sc.SkipMetrics {
		if err := op.Step(ctx, StepMetrics, st.checkMetrics); err != nil {
			return st.res, err
		}
	}
	if err := op.Step(ctx, StepVerify, st.verify); err != nil {
		return st.res, err
	}
	return st.res, nil
}

func (st *run) allocate(ctx context.Context) error {
	sess, err := session.Open(st.res.Session, st.res.Interface, st.deps.Links)
	if err != nil {
		return err
	}
	st.sess = sess
	st.orch = orchestrator.New(st.deps.Runtime, st.deps.Allocator, sess, st.cfg, orchestrator.WithClock(st.deps.Clock))
	return nil
}

func (st *run) start(ctx context.Context) error {
	for i, spec := range st.sc.Instances {
		var (
			inst orchestrator.Instance
			err  error
		)
		switch spec.Port {
		case PortConflicting:
			port, perr := st.deps.Allocator.PickConflictingPort(st.sess.Ports())
			if perr != nil {
				return fmt.Errorf("instance %d: %w", i, perr)
			}
			inst, err = st.orch.StartConflicting(ctx, spec.Image, port, spec.Role)
		case PortAvailable:
			port, perr := st.deps.Allocator.PickAvailablePort(st.sess.Ports())
			if perr != nil {
				return fmt.Errorf("instance %d: %w", i, perr)
			}
			inst, err = st.orch.Start(ctx, spec.Image, port, spec.Role)
		default:
			inst, err = st.orch.Start(ctx, spec.Image, st.cfg.DefaultPort, spec.Role)
		}
		if err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
		st.res.Instances = append(st.res.Instances, inst)
	}

	if st.cfg.StartupGrace > 0 {
		return st.deps.Clock.Sleep(ctx, st.cfg.StartupGrace)
	}
	return nil
}

func (st *run) replay(ctx context.Context) error {
	for _, name := range st.sc.Captures {
		report, err := st.deps.Replayer.Replay(ctx, st.res.Interface, st.cfg.CapturePath(name))
		if err != nil {
			return err
		}
		st.sess.AddCapture(name)
		st.res.Reports = append(st.res.Reports, report)
	}
	st.res.Captures = st.sess.Captures()
	return nil
}

// checkMetrics checks every instance that owns its port. Instances started
// on a conflicting port are expected not to serve.
func (st *run) checkMetrics(ctx context.Context) error {
	endpoints := st.sc.endpoints()
	timeout := st.sc.endpointTimeout()
	schema := st.cfg.SchemaPath()

	var failed []string
	for _, inst := range st.res.Instances {
		if owner, ok := st.sess.Port(inst.ID); !ok || owner != inst.Port {
			continue
		}
		results, _, err := st.deps.Metrics.CheckEndpoints(ctx, endpoints, inst.Port, schema, timeout)
		for _, r := range results {
			st.res.Endpoints = append(st.res.Endpoints, EndpointResult{Instance: inst.Name, Result: r})
			if !r.OK() {
				failed = append(failed, inst.Name+":"+r.Endpoint)
			}
		}
		if err != nil {
			return err
		}

		if st.sc.Prometheus {
			resp, ok, err := st.deps.Metrics.Get(ctx, metrics.PrometheusEndpoint, inst.Port, timeout)
			if err != nil {
				return err
			}
			if !ok {
				return &AssertionError{Check: inst.Name + " prometheus status", Expected: http.StatusOK, Actual: resp.Status}
			}
		}
	}
	if len(failed) > 0 {
		return &AssertionError{Check: "endpoints with valid metrics", Expected: "all", Actual: fmt.Sprintf("failures %v", failed)}
	}
	return nil
}

func (st *run) verify(ctx context.Context) error {
	ids := make([]string, 0, len(st.res.Instances))
	for _, inst := range st.res.Instances {
		ids = append(ids, inst.ID)
	}
	for _, want := range st.sc.ExpectStatus {
		matched, ok, err := st.orch.CountWithStatus(ctx, ids, want.Status, want.Count)
		if err != nil {
			return err
		}
		if !ok {
			return &AssertionError{Check: fmt.Sprintf("instances %s", want.Status), Expected: want.Count, Actual: len(matched)}
		}
	}

	for _, want := range st.sc.ExpectLogs {
		inst := st.res.Instances[want.Instance]
		found, err := st.findLog(ctx, inst.ID, want)
		if err != nil {
			return err
		}
		if !found {
			return &AssertionError{
				Check:    fmt.Sprintf("log of %s", inst.Name),
				Expected: fmt.Sprintf("%q with %s=%q", want.Message, want.NameKey, want.Name),
				Actual:   logmatch.NotFound,
			}
		}
	}
	return nil
}

// findLog polls the instance's logs, since the agent may not have written the
// record yet.
func (st *run) findLog(ctx context.Context, id string, want LogExpectation) (bool, error) {
	probe := poll.WithPolicy(poll.RetryOnMismatch, nil, func(ctx context.Context) (logmatch.Entry, bool, error) {
		lines, err := st.orch.Logs(ctx, id)
		if err != nil {
			return nil, false, err
		}
		found, entry := logmatch.Find(lines, want.Message, want.Name, want.NameKey)
		return entry, found, nil
	})
	opts := poll.Options{Wait: st.cfg.Poll.Wait, Timeout: st.cfg.Poll.Timeout, Clock: st.deps.Clock}
	out, err := poll.Until(ctx, opts, nil, probe)
	return out.Succeeded, err
}

// teardown releases the session even when ctx was cancelled.
func (st *run) teardown(ctx context.Context) error {
	if st.sess == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	return st.op.Step(ctx, StepTeardown, func(ctx context.Context) error {
		for i := range st.res.Instances {
			if status, err := st.orch.Status(ctx, st.res.Instances[i].ID); err == nil {
				st.res.Instances[i].Status = status
			}
		}
		return st.sess.Close(ctx, st.orch)
	})
}

func (st *run) record(err error) {
	if st.deps.Journal == nil {
		return
	}
	if _, jerr := st.deps.Journal.Record(st.res.journalEntry(err)); jerr != nil {
		slog.Warn("Failed to record run.", "session", st.res.Session, "err", jerr)
	}
}

func outcome(err error) string {
	var assertion *AssertionError
	switch {
	case err == nil:
		return sqlite.OutcomePass
	case errors.As(err, &assertion):
		return sqlite.OutcomeFail
	default:
		return sqlite.OutcomeError
	}
}
