// Package orchestrator drives a session from objective to final result:
// planning new sessions, resuming interrupted ones and running pending
// tasks one at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	taskcontext "github.com/berth-dev/todoagent/internal/context"
	"github.com/berth-dev/todoagent/internal/execute"
	"github.com/berth-dev/todoagent/internal/lifecycle"
	"github.com/berth-dev/todoagent/internal/plan"
	"github.com/berth-dev/todoagent/internal/session"
)

var (
	// ErrInterrupted is returned when the caller cancels a run. Tasks that
	// were running are back in pending and the session stays resumable.
	ErrInterrupted = errors.New("session interrupted")
	// ErrEmptyObjective is returned for a blank objective.
	ErrEmptyObjective = errors.New("objective is empty")
	// ErrSessionNotFound is returned when resuming an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrLeaseLost is returned when another run took the session over. The
	// run stops without writing, leaving the session to the new holder.
	ErrLeaseLost = errors.New("session lease lost")
)

// Reflections recorded when the executor did not produce a structured report.
const (
	ReflectionExecutionError  = "execution error"
	ReflectionExecutionFailed = "execution failed"
)

// DefaultLeaseTTL is how long a run may hold a session without refreshing.
const DefaultLeaseTTL = 30 * time.Minute

// Store is the persistence the orchestrator needs.
type Store interface {
	FindSession(ctx context.Context, id string) (*session.Session, error)
	CreateSession(ctx context.Context, id, objective string, tasks []session.NewTask) (*session.Session, error)
	UpdateTask(ctx context.Context, sessionID string, u session.TaskUpdate) error
	ListCompleted(ctx context.Context, sessionID string) ([]session.Task, error)
	ListPending(ctx context.Context, sessionID string) ([]session.Task, error)
	MarkSessionCompleted(ctx context.Context, sessionID string) error
	AcquireLease(ctx context.Context, sessionID, owner string, ttl time.Duration) (*session.Lease, error)
}

// Options tune a run.
type Options struct {
	// ExecutionTimeout bounds a single executor call. Zero means no limit.
	ExecutionTimeout time.Duration
	// LeaseTTL is the session lease lifetime. A held lease is refreshed in
	// the background every LeaseTTL/3 and before every write.
	LeaseTTL time.Duration
	// Owner identifies this run in session leases. Defaults to a random id.
	Owner string
}

// Orchestrator runs sessions.
type Orchestrator struct {
	store    Store
	planner  plan.Planner
	executor execute.Executor
	opts     Options
	observer Observers
}

// New returns an orchestrator over the given collaborators.
func New(store Store, planner plan.Planner, executor execute.Executor, opts Options, observers ...Observer) *Orchestrator {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}
	return &Orchestrator{
		store:    store,
		planner:  planner,
		executor: executor,
		opts:     opts,
		observer: Observers(observers),
	}
}

// HandleUserInput derives the session id from the objective and either
// starts a new session or resumes the existing one.
func (o *Orchestrator) HandleUserInput(ctx context.Context, objective string) (*Report, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, ErrEmptyObjective
	}
	id := session.Fingerprint(objective)

	sess, err := o.store.FindSession(ctx, id)
	if err != nil {
		return o.done(ctx, nil, err)
	}
	var report *Report
	if sess == nil {
		report, err = o.startNew(ctx, id, objective)
	} else {
		report, err = o.resume(ctx, sess)
	}
	return o.done(ctx, report, err)
}

// ResumeSession resumes a stored session by id.
func (o *Orchestrator) ResumeSession(ctx context.Context, id string) (*Report, error) {
	sess, err := o.store.FindSession(ctx, id)
	if err != nil {
		return o.done(ctx, nil, err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	report, err := o.resume(ctx, sess)
	return o.done(ctx, report, err)
}

// done reports any failure caused by the caller's cancellation as an
// interruption.
func (o *Orchestrator) done(ctx context.Context, report *Report, err error) (*Report, error) {
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrInterrupted) {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	}
	return report, err
}

func (o *Orchestrator) startNew(ctx context.Context, id, objective string) (*Report, error) {
	lease, err := o.store.AcquireLease(ctx, id, o.opts.Owner, o.opts.LeaseTTL)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, lease)
	ctx, stop := hold(ctx, lease)
	defer stop()

	// Another run may have created the session while we waited for the lease.
	existing, err := o.store.FindSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.resumeLocked(ctx, existing, lease)
	}

	o.observer.SessionStarted(id, objective)
	tasks, err := o.planner.CreatePlan(ctx, objective)
	if lost := leaseLost(ctx); lost != nil {
		return nil, lost
	}
	if err == nil && len(tasks) == 0 {
		err = errors.New("plan has no tasks")
	}
	if err != nil {
		var pe *plan.PlanningError
		if !errors.As(err, &pe) {
			err = &plan.PlanningError{Objective: objective, Err: err}
		}
		return nil, err
	}

	if err := o.confirm(ctx, lease); err != nil {
		return nil, err
	}
	sess, err := o.store.CreateSession(ctx, id, objective, tasks)
	if err != nil {
		return nil, err
	}
	o.observer.PlanCreated(sess)
	return o.run(ctx, sess, sess.Tasks, lease, false)
}

func (o *Orchestrator) resume(ctx context.Context, sess *session.Session) (*Report, error) {
	if report, ok, err := o.settled(ctx, sess); ok || err != nil {
		return report, err
	}

	lease, err := o.store.AcquireLease(ctx, sess.ID, o.opts.Owner, o.opts.LeaseTTL)
	if err != nil {
		return nil, err
	}
	defer o.release(ctx, lease)
	ctx, stop := hold(ctx, lease)
	defer stop()

	// Re-read under the lease; the previous holder may have moved on.
	fresh, err := o.store.FindSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	return o.resumeLocked(ctx, fresh, lease)
}

func (o *Orchestrator) resumeLocked(ctx context.Context, sess *session.Session, lease *session.Lease) (*Report, error) {
	if report, ok, err := o.settled(ctx, sess); ok || err != nil {
		return report, err
	}

	// Tasks still in progress were abandoned by a run that died without
	// reverting them.
	for _, t := range sess.TasksWithStatus(lifecycle.InProgress) {
		if _, err := lifecycle.Transition(t.Status, lifecycle.Pending); err != nil {
			return nil, err
		}
		if err := o.confirm(ctx, lease); err != nil {
			return nil, err
		}
		if err := o.store.UpdateTask(ctx, sess.ID, session.TaskUpdate{
			SequenceID: t.SequenceID,
			Status:     lifecycle.Pending,
		}); err != nil {
			return nil, err
		}
	}

	pending, err := o.store.ListPending(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	o.observer.SessionResumed(sess)
	return o.run(ctx, sess, pending, lease, true)
}

// settled handles a resumed session that needs no execution: one with a
// failed task, or one with nothing left to run. It reports ok=false when
// pending work remains.
func (o *Orchestrator) settled(ctx context.Context, sess *session.Session) (*Report, bool, error) {
	failed := len(sess.TasksWithStatus(lifecycle.Failed)) > 0
	remaining := len(sess.TasksWithStatus(lifecycle.Pending)) + len(sess.TasksWithStatus(lifecycle.InProgress))
	if !failed && remaining > 0 && sess.Status != lifecycle.SessionComplete {
		return nil, false, nil
	}

	if !failed && sess.Status == lifecycle.Active {
		// Every task completed but the run stopped before closing the session.
		if err := o.store.MarkSessionCompleted(ctx, sess.ID); err != nil {
			return nil, true, err
		}
	}

	report := reportFor(sess, true)
	o.observer.SessionResumed(sess)
	o.observer.Finished(report)
	return report, true, nil
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, pending []session.Task, lease *session.Lease, resumed bool) (*Report, error) {
	bg := context.WithoutCancel(ctx)

	for _, task := range pending {
		if ctx.Err() != nil {
			return nil, o.interrupt(ctx, sess.ID)
		}

		if _, err := lifecycle.Transition(task.Status, lifecycle.InProgress); err != nil {
			return nil, err
		}
		if err := o.confirm(ctx, lease); err != nil {
			return nil, err
		}
		if err := o.store.UpdateTask(ctx, sess.ID, session.TaskUpdate{
			SequenceID: task.SequenceID,
			Status:     lifecycle.InProgress,
		}); err != nil {
			if ctx.Err() != nil {
				return nil, o.interrupt(ctx, sess.ID)
			}
			return nil, err
		}
		task.Status = lifecycle.InProgress
		o.observer.TaskStarted(sess.ID, task)

		prior, err := taskcontext.Build(ctx, o.store, sess.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, o.interrupt(ctx, sess.ID)
			}
			return nil, err
		}

		outcome, execErr := o.execute(ctx, task.Content, prior)
		if execErr != nil && ctx.Err() != nil {
			return nil, o.interrupt(ctx, sess.ID)
		}

		update := classify(task.SequenceID, outcome, execErr)
		if _, err := lifecycle.Transition(lifecycle.InProgress, update.Status); err != nil {
			return nil, err
		}
		if err := o.confirm(bg, lease); err != nil {
			return nil, err
		}
		// The terminal write must land even if cancellation arrives now.
		if err := o.store.UpdateTask(bg, sess.ID, update); err != nil {
			return nil, err
		}
		task.Status = update.Status
		task.Result = update.Result
		task.Reflection = update.Reflection
		o.observer.TaskFinished(sess.ID, task)

		if update.Status == lifecycle.Failed {
			break
		}
	}

	if err := o.confirm(bg, lease); err != nil {
		return nil, err
	}
	if err := o.store.MarkSessionCompleted(bg, sess.ID); err != nil {
		return nil, err
	}
	final, err := o.store.FindSession(bg, sess.ID)
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	report := reportFor(final, resumed)
	o.observer.Finished(report)
	return report, nil
}

// execute calls the executor with the optional timeout, turning a panic
// into an error.
func (o *Orchestrator) execute(ctx context.Context, task string, prior []taskcontext.Entry) (outcome execute.Outcome, err error) {
	if o.opts.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.ExecutionTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return o.executor.Execute(ctx, task, prior)
}

// classify maps an executor result onto the task's terminal update.
func classify(seq int, outcome execute.Outcome, err error) session.TaskUpdate {
	u := session.TaskUpdate{SequenceID: seq, Status: lifecycle.Failed}
	if err != nil {
		u.Result = err.Error()
		u.Reflection = ReflectionExecutionFailed
		return u
	}

	switch out := outcome.(type) {
	case *execute.Report:
		if out == nil {
			break
		}
		if out.Status != lifecycle.Completed && out.Status != lifecycle.Failed {
			u.Result = fmt.Sprintf("executor reported status %q", out.Status)
			u.Reflection = ReflectionExecutionError
			return u
		}
		u.Status = out.Status
		u.Result = out.Result
		u.Reflection = out.Reflection
		return u
	case *execute.ErrorReport:
		if out == nil {
			break
		}
		u.Result = out.Message
		u.Reflection = ReflectionExecutionError
		return u
	}

	u.Result = "executor returned no outcome"
	u.Reflection = ReflectionExecutionFailed
	return u
}

// interrupt reverts every in-progress task to pending and leaves the
// session active.
func (o *Orchestrator) interrupt(ctx context.Context, sessionID string) error {
	if lost := leaseLost(ctx); lost != nil {
		// The session belongs to another run now; its tasks are not ours
		// to revert.
		return lost
	}
	cause := fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	bg := context.WithoutCancel(ctx)

	sess, err := o.store.FindSession(bg, sessionID)
	if err != nil {
		return errors.Join(cause, err)
	}
	var reverted []int
	if sess != nil {
		for _, t := range sess.TasksWithStatus(lifecycle.InProgress) {
			if err := o.store.UpdateTask(bg, sessionID, session.TaskUpdate{
				SequenceID: t.SequenceID,
				Status:     lifecycle.Pending,
			}); err != nil {
				return errors.Join(cause, err)
			}
			reverted = append(reverted, t.SequenceID)
		}
	}
	o.observer.Interrupted(sessionID, reverted)
	return cause
}

func (o *Orchestrator) release(ctx context.Context, lease *session.Lease) {
	_ = lease.Release(context.WithoutCancel(ctx))
}

// confirm refreshes the lease right before a write. A successful refresh
// keeps the lease live for a full TTL, so no other run can take the
// session over before the write lands.
func (o *Orchestrator) confirm(ctx context.Context, lease *session.Lease) error {
	if lost := leaseLost(ctx); lost != nil {
		return lost
	}
	if err := lease.Refresh(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("%w: %w", ErrLeaseLost, err)
	}
	return nil
}

// hold refreshes lease in the background until stop is called. When a
// refresh fails the returned context is cancelled with an ErrLeaseLost
// cause, which stops the run before its next write.
func hold(ctx context.Context, lease *session.Lease) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup

	interval := lease.TTL / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lease.Refresh(context.WithoutCancel(ctx)); err != nil {
					cancel(fmt.Errorf("%w: %w", ErrLeaseLost, err))
					return
				}
			}
		}
	}()

	return ctx, func() {
		close(done)
		wg.Wait()
		cancel(nil)
	}
}

// leaseLost returns the cancellation cause of ctx if the run lost its lease.
func leaseLost(ctx context.Context) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrLeaseLost) {
		return cause
	}
	return nil
}

// reportFor summarizes a session: its failures if any task failed,
// otherwise the result of the last completed task.
func reportFor(sess *session.Session, resumed bool) *Report {
	r := &Report{
		SessionID: sess.ID,
		Objective: sess.Objective,
		Resumed:   resumed,
		Outcome:   OutcomeCompleted,
	}
	if failed := sess.TasksWithStatus(lifecycle.Failed); len(failed) > 0 {
		r.Outcome = OutcomeFailed
		for _, t := range failed {
			r.Failures = append(r.Failures, ExecutionFailure{
				SequenceID: t.SequenceID,
				Title:      t.Title,
				Result:     t.Result,
				Reflection: t.Reflection,
			})
		}
		return r
	}
	if completed := sess.TasksWithStatus(lifecycle.Completed); len(completed) > 0 {
		r.FinalResult = completed[len(completed)-1].Result
		r.HasResult = true
	}
	return r
}
