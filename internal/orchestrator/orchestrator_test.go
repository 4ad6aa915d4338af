package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	taskcontext "github.com/berth-dev/todoagent/internal/context"
	"github.com/berth-dev/todoagent/internal/execute"
	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/plan"
	"github.com/berth-dev/todoagent/internal/session"
)

// countingStore records every mutating call made through it.
type countingStore struct {
	*session.Store
	mu     sync.Mutex
	writes []string
}

func (c *countingStore) record(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, op)
}

func (c *countingStore) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *countingStore) CreateSession(ctx context.Context, id, objective string, tasks []session.NewTask) (*session.Session, error) {
	c.record("create")
	return c.Store.CreateSession(ctx, id, objective, tasks)
}

func (c *countingStore) UpdateTask(ctx context.Context, sessionID string, u session.TaskUpdate) error {
	c.record("update")
	return c.Store.UpdateTask(ctx, sessionID, u)
}

func (c *countingStore) MarkSessionCompleted(ctx context.Context, sessionID string) error {
	c.record("mark")
	return c.Store.MarkSessionCompleted(ctx, sessionID)
}

func (c *countingStore) AcquireLease(ctx context.Context, sessionID, owner string, ttl time.Duration) (*session.Lease, error) {
	c.record("lease")
	return c.Store.AcquireLease(ctx, sessionID, owner, ttl)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	s, err := session.NewStore(filepath.Join(t.TempDir(), "orch.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return &countingStore{Store: s}
}

type stubPlanner struct {
	tasks []session.NewTask
	err   error
	calls int
}

func (p *stubPlanner) CreatePlan(context.Context, string) ([]session.NewTask, error) {
	p.calls++
	return p.tasks, p.err
}

type call struct {
	task  string
	prior []taskcontext.Entry
}

// scriptedExecutor answers each task content through fn, recording calls.
type scriptedExecutor struct {
	mu    sync.Mutex
	calls []call
	fn    func(ctx context.Context, task string) (execute.Outcome, error)
}

func (e *scriptedExecutor) Execute(ctx context.Context, task string, prior []taskcontext.Entry) (execute.Outcome, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call{task: task, prior: prior})
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(ctx, task)
	}
	return &execute.Report{Status: lifecycle.Completed, Result: "result of " + task, Reflection: "ok"}, nil
}

func (e *scriptedExecutor) tasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.calls {
		out = append(out, c.task)
	}
	return out
}

func threeStepPlan() *stubPlanner {
	return &stubPlanner{tasks: []session.NewTask{
		{SequenceID: 1, Title: "First", Content: "do first"},
		{SequenceID: 2, Title: "Second", Content: "do second"},
		{SequenceID: 3, Title: "Third", Content: "do third"},
	}}
}

const objective = "Plan a weekend in Lisbon"

func TestNewSessionRunsAllTasks(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	planner := threeStepPlan()
	exec := &scriptedExecutor{}

	report, err := New(store, planner, exec, Options{}).HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	if report.Outcome != OutcomeCompleted || report.Resumed {
		t.Errorf("got outcome %s resumed %v", report.Outcome, report.Resumed)
	}
	if report.FinalResult != "result of do third" || !report.HasResult {
		t.Errorf("got final result %q", report.FinalResult)
	}
	if report.SessionID != session.Fingerprint(objective) {
		t.Errorf("got session id %s", report.SessionID)
	}

	got := exec.tasks()
	want := []string{"do first", "do second", "do third"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got execution order %v, want %v", got, want)
	}
	// Each task sees exactly the tasks completed before it.
	for i, c := range exec.calls {
		if len(c.prior) != i {
			t.Errorf("task %d: got %d prior entries, want %d", i+1, len(c.prior), i)
		}
	}
	if exec.calls[2].prior[1].Result != "result of do second" {
		t.Errorf("prior context not refreshed: %+v", exec.calls[2].prior)
	}

	sess, err := store.FindSession(ctx, report.SessionID)
	if err != nil {
		t.Fatalf("FindSession: %v", err)
	}
	if sess.Status != lifecycle.SessionComplete {
		t.Errorf("got session status %s, want completed", sess.Status)
	}
	for _, task := range sess.Tasks {
		if task.Status != lifecycle.Completed || task.StartedAt == nil || task.CompletedAt == nil {
			t.Errorf("task %d: %+v", task.SequenceID, task)
		}
	}
}

func TestResumeFinishedSessionWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	if _, err := New(store, threeStepPlan(), &scriptedExecutor{}, Options{}).HandleUserInput(ctx, objective); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := len(store.Writes())

	planner := threeStepPlan()
	exec := &scriptedExecutor{}
	report, err := New(store, planner, exec, Options{}).HandleUserInput(ctx, "  Plan a weekend   in Lisbon ")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !report.Resumed || report.FinalResult != "result of do third" {
		t.Errorf("got %+v", report)
	}
	if planner.calls != 0 || len(exec.calls) != 0 {
		t.Errorf("got planner calls %d executor calls %d, want none", planner.calls, len(exec.calls))
	}
	if after := store.Writes(); len(after) != before {
		t.Errorf("resume wrote to the store: %v", after[before:])
	}
}

func TestFailureStopsSessionAndIsReported(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	exec := &scriptedExecutor{fn: func(_ context.Context, task string) (execute.Outcome, error) {
		if task == "do second" {
			return &execute.Report{Status: lifecycle.Failed, Result: "no data", Reflection: "source was down"}, nil
		}
		return &execute.Report{Status: lifecycle.Completed, Result: "fine"}, nil
	}}

	report, err := New(store, threeStepPlan(), exec, Options{}).HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	if report.Outcome != OutcomeFailed {
		t.Fatalf("got outcome %s, want failed", report.Outcome)
	}
	if len(report.Failures) != 1 || report.Failures[0].Title != "Second" || report.Failures[0].Reflection != "source was down" {
		t.Errorf("got failures %+v", report.Failures)
	}
	if !strings.Contains(report.Summary(), "source was down") {
		t.Errorf("summary missing reflection: %q", report.Summary())
	}
	if !strings.Contains(report.Summary(), "Task #2 failed: no data") {
		t.Errorf("summary missing error text: %q", report.Summary())
	}
	if len(exec.calls) != 2 {
		t.Errorf("got %d executions, want 2", len(exec.calls))
	}

	sess, _ := store.FindSession(ctx, report.SessionID)
	if sess.Status != lifecycle.SessionComplete {
		t.Errorf("got session status %s, want completed", sess.Status)
	}
	if sess.Tasks[2].Status != lifecycle.Pending {
		t.Errorf("task after failure: got %s, want pending", sess.Tasks[2].Status)
	}

	// Resuming a failed session reports the failure without running anything.
	before := len(store.Writes())
	exec2 := &scriptedExecutor{}
	again, err := New(store, threeStepPlan(), exec2, Options{}).HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if again.Outcome != OutcomeFailed || len(again.Failures) != 1 {
		t.Errorf("got %+v", again)
	}
	if len(exec2.calls) != 0 {
		t.Errorf("resume executed %d tasks", len(exec2.calls))
	}
	if after := store.Writes(); len(after) != before {
		t.Errorf("resume wrote to the store: %v", after[before:])
	}
}

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		name           string
		fn             func(context.Context, string) (execute.Outcome, error)
		wantResult     string
		wantReflection string
	}{
		{
			name: "error report",
			fn: func(context.Context, string) (execute.Outcome, error) {
				return &execute.ErrorReport{Message: "Error executing step: bad key"}, nil
			},
			wantResult:     "Error executing step: bad key",
			wantReflection: ReflectionExecutionError,
		},
		{
			name: "returned error",
			fn: func(context.Context, string) (execute.Outcome, error) {
				return nil, errors.New("socket closed")
			},
			wantResult:     "socket closed",
			wantReflection: ReflectionExecutionFailed,
		},
		{
			name: "panic",
			fn: func(context.Context, string) (execute.Outcome, error) {
				panic("nil map")
			},
			wantResult:     "executor panic: nil map",
			wantReflection: ReflectionExecutionFailed,
		},
		{
			name: "nil outcome",
			fn: func(context.Context, string) (execute.Outcome, error) {
				return nil, nil
			},
			wantResult:     "executor returned no outcome",
			wantReflection: ReflectionExecutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newCountingStore(t)
			report, err := New(store, threeStepPlan(), &scriptedExecutor{fn: tt.fn}, Options{}).HandleUserInput(ctx, objective)
			if err != nil {
				t.Fatalf("HandleUserInput: %v", err)
			}
			if report.Outcome != OutcomeFailed || len(report.Failures) != 1 {
				t.Fatalf("got %+v", report)
			}
			f := report.Failures[0]
			if f.SequenceID != 1 || f.Result != tt.wantResult || f.Reflection != tt.wantReflection {
				t.Errorf("got %+v", f)
			}
		})
	}
}

func TestExecutionTimeoutIsAFailureNotAnInterrupt(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	exec := &scriptedExecutor{fn: func(ctx context.Context, _ string) (execute.Outcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	report, err := New(store, threeStepPlan(), exec, Options{ExecutionTimeout: 20 * time.Millisecond}).HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	if report.Outcome != OutcomeFailed || report.Failures[0].Reflection != ReflectionExecutionFailed {
		t.Errorf("got %+v", report)
	}
}

func TestInterruptRevertsAndResumes(t *testing.T) {
	store := newCountingStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &scriptedExecutor{fn: func(ctx context.Context, task string) (execute.Outcome, error) {
		if task == "do second" {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &execute.Report{Status: lifecycle.Completed, Result: "result of " + task}, nil
	}}

	_, err := New(store, threeStepPlan(), exec, Options{}).HandleUserInput(ctx, objective)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want it to wrap context.Canceled", err)
	}

	id := session.Fingerprint(objective)
	sess, _ := store.FindSession(context.Background(), id)
	if sess.Status != lifecycle.Active {
		t.Errorf("got session status %s, want active", sess.Status)
	}
	wantStatus := []lifecycle.TaskStatus{lifecycle.Completed, lifecycle.Pending, lifecycle.Pending}
	for i, task := range sess.Tasks {
		if task.Status != wantStatus[i] {
			t.Errorf("task %d: got %s, want %s", task.SequenceID, task.Status, wantStatus[i])
		}
	}
	if sess.Tasks[1].StartedAt != nil {
		t.Error("reverted task kept started_at")
	}

	// Resume picks up at the interrupted task without planning again.
	planner := threeStepPlan()
	exec2 := &scriptedExecutor{}
	report, err := New(store, planner, exec2, Options{}).HandleUserInput(context.Background(), objective)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if planner.calls != 0 {
		t.Errorf("resume called the planner %d times", planner.calls)
	}
	if got := exec2.tasks(); strings.Join(got, ",") != "do second,do third" {
		t.Errorf("got resumed tasks %v", got)
	}
	if len(exec2.calls[0].prior) != 1 || exec2.calls[0].prior[0].Result != "result of do first" {
		t.Errorf("got prior %+v", exec2.calls[0].prior)
	}
	if !report.Resumed || report.Outcome != OutcomeCompleted || report.FinalResult != "result of do third" {
		t.Errorf("got %+v", report)
	}
}

func TestInterruptBeforeFirstTask(t *testing.T) {
	store := newCountingStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	planner := &stubPlanner{tasks: threeStepPlan().tasks}
	exec := &scriptedExecutor{}

	// Cancel while planning; the plan is still returned.
	wrapped := plannerFunc(func(ctx context.Context, o string) ([]session.NewTask, error) {
		cancel()
		return planner.CreatePlan(ctx, o)
	})
	_, err := New(store, wrapped, exec, Options{}).HandleUserInput(ctx, objective)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}
	if len(exec.calls) != 0 {
		t.Errorf("executed %d tasks after cancel", len(exec.calls))
	}
}

type plannerFunc func(ctx context.Context, objective string) ([]session.NewTask, error)

func (f plannerFunc) CreatePlan(ctx context.Context, objective string) ([]session.NewTask, error) {
	return f(ctx, objective)
}

func TestPlanningFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)

	for name, planner := range map[string]*stubPlanner{
		"error": {err: errors.New("model unavailable")},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(store, planner, &scriptedExecutor{}, Options{}).HandleUserInput(ctx, objective)
			var pe *plan.PlanningError
			if !errors.As(err, &pe) {
				t.Fatalf("got %v, want *PlanningError", err)
			}
			sess, err := store.FindSession(ctx, session.Fingerprint(objective))
			if err != nil {
				t.Fatalf("FindSession: %v", err)
			}
			if sess != nil {
				t.Errorf("session persisted after planning failure: %+v", sess)
			}
		})
	}
}

func TestResumeRecoversAbandonedTask(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	id := session.Fingerprint(objective)
	if _, err := store.Store.CreateSession(ctx, id, objective, threeStepPlan().tasks); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	// A crashed run left task 1 in progress.
	_ = store.Store.UpdateTask(ctx, id, session.TaskUpdate{SequenceID: 1, Status: lifecycle.InProgress})

	exec := &scriptedExecutor{}
	report, err := New(store, threeStepPlan(), exec, Options{}).HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	if got := exec.tasks(); len(got) != 3 || got[0] != "do first" {
		t.Errorf("got %v, want all three tasks", got)
	}
	if report.Outcome != OutcomeCompleted {
		t.Errorf("got %+v", report)
	}
}

func TestResumeCompletesDanglingSession(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	id := session.Fingerprint(objective)
	tasks := threeStepPlan().tasks[:1]
	if _, err := store.Store.CreateSession(ctx, id, objective, tasks); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_ = store.Store.UpdateTask(ctx, id, session.TaskUpdate{SequenceID: 1, Status: lifecycle.InProgress})
	_ = store.Store.UpdateTask(ctx, id, session.TaskUpdate{SequenceID: 1, Status: lifecycle.Completed, Result: "done"})

	exec := &scriptedExecutor{}
	report, err := New(store, threeStepPlan(), exec, Options{}).HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	if report.FinalResult != "done" || len(exec.calls) != 0 {
		t.Errorf("got %+v with %d executions", report, len(exec.calls))
	}
	sess, _ := store.FindSession(ctx, id)
	if sess.Status != lifecycle.SessionComplete {
		t.Errorf("got %s, want completed", sess.Status)
	}
}

func TestLockedSessionIsRejected(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	id := session.Fingerprint(objective)
	if _, err := store.Store.AcquireLease(ctx, id, "someone-else", time.Hour); err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}

	planner := threeStepPlan()
	_, err := New(store, planner, &scriptedExecutor{}, Options{}).HandleUserInput(ctx, objective)
	if !errors.Is(err, session.ErrLocked) {
		t.Fatalf("got %v, want ErrLocked", err)
	}
	if planner.calls != 0 {
		t.Error("planned while another run held the session")
	}
}

func TestConcurrentRunIsLockedOut(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	planner := &stubPlanner{tasks: threeStepPlan().tasks[:2]}

	var running, peak atomic.Int32
	exec := &scriptedExecutor{fn: func(ctx context.Context, task string) (execute.Outcome, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		// Each task outlives the lease TTL several times over.
		time.Sleep(300 * time.Millisecond)
		return &execute.Report{Status: lifecycle.Completed, Result: "result of " + task}, nil
	}}
	opts := func(owner string) Options {
		return Options{Owner: owner, LeaseTTL: 100 * time.Millisecond}
	}

	first := make(chan error, 1)
	go func() {
		_, err := New(store, planner, exec, opts("run-a")).HandleUserInput(ctx, objective)
		first <- err
	}()

	time.Sleep(250 * time.Millisecond)
	_, err := New(store, planner, exec, opts("run-b")).HandleUserInput(ctx, objective)
	if !errors.Is(err, session.ErrLocked) {
		t.Errorf("second run: got %v, want ErrLocked", err)
	}
	if err := <-first; err != nil {
		t.Fatalf("first run: %v", err)
	}

	if got := peak.Load(); got != 1 {
		t.Errorf("got %d concurrent executions, want 1", got)
	}
	if got, want := strings.Join(exec.tasks(), ","), "do first,do second"; got != want {
		t.Errorf("got executed %s, want %s", got, want)
	}
	if planner.calls != 1 {
		t.Errorf("got %d planner calls, want 1", planner.calls)
	}
}

func TestLostLeaseStopsWithoutWriting(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	rec := &recordingObserver{}
	id := session.Fingerprint(objective)

	var writesBefore int
	exec := &scriptedExecutor{fn: func(ctx context.Context, task string) (execute.Outcome, error) {
		writesBefore = len(store.Writes())
		// Dropping the session also drops its lease out from under the run.
		if _, err := store.DeleteSession(context.Background(), id); err != nil {
			return nil, err
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	o := New(store, threeStepPlan(), exec, Options{LeaseTTL: 30 * time.Millisecond}, rec)
	_, err := o.HandleUserInput(ctx, objective)
	if !errors.Is(err, ErrLeaseLost) || !errors.Is(err, session.ErrLocked) {
		t.Fatalf("got %v, want ErrLeaseLost wrapping ErrLocked", err)
	}
	if errors.Is(err, ErrInterrupted) {
		t.Errorf("lost lease reported as an interrupt: %v", err)
	}
	if got := len(store.Writes()); got != writesBefore {
		t.Errorf("got %d writes after the lease was lost: %v", got-writesBefore, store.Writes()[writesBefore:])
	}
	for _, e := range rec.events {
		if e == "interrupted" || e == "finished" {
			t.Errorf("got %s event after losing the lease", e)
		}
	}
}

func TestDispatcherInputs(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore(t)
	o := New(store, threeStepPlan(), &scriptedExecutor{}, Options{})

	if _, err := o.HandleUserInput(ctx, "   "); !errors.Is(err, ErrEmptyObjective) {
		t.Errorf("got %v, want ErrEmptyObjective", err)
	}
	if _, err := o.ResumeSession(ctx, "deadbeef"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}

	report, err := o.HandleUserInput(ctx, objective)
	if err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	again, err := o.ResumeSession(ctx, report.SessionID)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if again.FinalResult != report.FinalResult || !again.Resumed {
		t.Errorf("got %+v", again)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) SessionStarted(string, string) { r.add("started") }
func (r *recordingObserver) PlanCreated(*session.Session) { r.add("planned") }
func (r *recordingObserver) SessionResumed(*session.Session) { r.add("resumed") }
func (r *recordingObserver) TaskStarted(string, session.Task) { r.add("task_started") }
func (r *recordingObserver) TaskFinished(_ string, t session.Task) { r.add("task_" + string(t.Status)) }
func (r *recordingObserver) Interrupted(string, []int) { r.add("interrupted") }
func (r *recordingObserver) Finished(*Report) { r.add("finished") }

func TestObserverSequence(t *testing.T) {
	store := newCountingStore(t)
	rec := &recordingObserver{}
	planner := &stubPlanner{tasks: threeStepPlan().tasks[:2]}

	if _, err := New(store, planner, &scriptedExecutor{}, Options{}, rec).HandleUserInput(context.Background(), objective); err != nil {
		t.Fatalf("HandleUserInput: %v", err)
	}
	want := "started,planned,task_started,task_completed,task_started,task_completed,finished"
	if got := strings.Join(rec.events, ","); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
