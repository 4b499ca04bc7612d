package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/loom/internal/decompose"
	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/graph"
	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
	"github.com/ShayCichocki/loom/internal/session"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Scheduler dispatches a validated decomposition wave by wave. It holds no
// business logic: workers do the work, the scheduler only sequences them and
// aggregates results.
type Scheduler struct {
	gw     *gateway.Gateway
	runner Runner
	sess   *session.Context
	policy policy.DispatchPolicy
	emit   func(Event)
}

// NewScheduler creates a scheduler. emit may be nil when no one is listening.
func NewScheduler(gw *gateway.Gateway, runner Runner, sess *session.Context, pol policy.DispatchPolicy, emit func(Event)) *Scheduler {
	if emit == nil {
		emit = func(Event) {}
	}
	if pol.MaxWorkers < 1 {
		pol.MaxWorkers = 1
	}
	return &Scheduler{gw: gw, runner: runner, sess: sess, policy: pol, emit: emit}
}

// Dispatch executes the batch and always returns a report; the error return
// covers only pre-dispatch rejection (conflicting claims or an unbuildable
// graph). Subtask failures land in the report, not the error.
func (s *Scheduler) Dispatch(ctx context.Context, subtasks []models.Subtask) (models.RunReport, error) {
	report := models.RunReport{
		SessionID: s.sessionID(),
		Subtasks:  subtasks,
		StartedAt: time.Now(),
	}

	// Disjointness gate: concurrently runnable subtasks must hold disjoint
	// claims before anything is dispatched. The decomposer already enforces
	// this; a plan arriving here in violation is rejected, never arbitrated.
	if conflicts := decompose.Validate(subtasks); len(conflicts) > 0 {
		report.Status = models.RunFailed
		report.FailureReason = "resource conflicts: " + strings.Join(conflicts, "; ")
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("dispatch rejected: %s", report.FailureReason)
	}

	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		report.Status = models.RunFailed
		report.FailureReason = err.Error()
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("dispatch rejected: %w", err)
	}
	waves, err := g.Waves()
	if err != nil {
		report.Status = models.RunFailed
		report.FailureReason = err.Error()
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("dispatch rejected: %w", err)
	}

	s.emit(Event{Type: EventRunStarted, Message: fmt.Sprintf("%d subtasks in %d waves", len(subtasks), len(waves)), Timestamp: time.Now()})

	claims := NewClaimRegistry()
	results := make(map[string]models.WorkerResult, len(subtasks))
	// failedRoot maps a failed or blocked subtask to the root failure that
	// caused it, for BlockedBy propagation.
	failedRoot := make(map[string]string)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	var failFastID string

	for waveNum, wave := range waves {
		if runCtx.Err() != nil {
			break
		}
		s.emit(Event{Type: EventWaveStarted, Wave: waveNum + 1, Message: fmt.Sprintf("%d subtasks", len(wave)), Timestamp: time.Now()})

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			sem = make(chan struct{}, s.policy.MaxWorkers)
		)

		for _, id := range wave {
			subtask, ok := g.Subtask(id)
			if !ok {
				continue
			}

			// A subtask whose dependency failed never runs. The root cause,
			// not the immediate parent, goes on the record. Dependencies live
			// in earlier waves, already joined, so the map is settled; the
			// lock just keeps the race detector honest.
			mu.Lock()
			root, blocked := s.blockedBy(subtask, failedRoot)
			if blocked {
				results[id] = models.WorkerResult{
					SubtaskID: id,
					Status:    models.SubtaskBlocked,
					BlockedBy: root,
				}
				failedRoot[id] = root
			}
			mu.Unlock()
			if blocked {
				s.emit(Event{Type: EventSubtaskBlocked, SubtaskID: id, Wave: waveNum + 1, Message: "blocked by " + root, Timestamp: time.Now()})
				continue
			}
			if runCtx.Err() != nil {
				continue
			}

			wg.Add(1)
			go func(st models.Subtask, wave int) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-runCtx.Done():
					return
				}
				if runCtx.Err() != nil {
					return
				}

				workerID := "worker-" + st.ID
				if err := claims.Acquire(workerID, st.ResourceClaims); err != nil {
					// The gate makes this unreachable for same-wave peers;
					// treat it as a subtask failure rather than arbitrating.
					mu.Lock()
					results[st.ID] = models.WorkerResult{
						SubtaskID:   st.ID,
						WorkerID:    workerID,
						Status:      models.SubtaskFailed,
						ErrorDetail: err.Error(),
					}
					failedRoot[st.ID] = st.ID
					mu.Unlock()
					return
				}
				defer claims.ReleaseAll(workerID)

				s.emit(Event{Type: EventSubtaskStarted, SubtaskID: st.ID, WorkerID: workerID, Wave: wave, Message: st.Description, Timestamp: time.Now()})

				handle := s.gw.Handle(workerID, st.ResourceClaims)
				res := NewWorker(workerID, st, handle, s.runner, s.sess).Run(runCtx)

				mu.Lock()
				results[st.ID] = res
				if res.Status == models.SubtaskFailed {
					failedRoot[st.ID] = st.ID
					if s.policy.FailFast && failFastID == "" {
						failFastID = st.ID
						cancelRun()
					}
				}
				mu.Unlock()

				switch res.Status {
				case models.SubtaskCompleted:
					s.emit(Event{Type: EventSubtaskCompleted, SubtaskID: st.ID, WorkerID: workerID, Wave: wave, Timestamp: time.Now()})
				case models.SubtaskFailed:
					s.emit(Event{Type: EventSubtaskFailed, SubtaskID: st.ID, WorkerID: workerID, Wave: wave, Message: res.ErrorDetail, Timestamp: time.Now()})
				}
			}(subtask, waveNum+1)
		}

		// Wave join: the next wave never starts until every worker in this
		// wave has reported.
		wg.Wait()
		s.emit(Event{Type: EventWaveCompleted, Wave: waveNum + 1, Timestamp: time.Now()})
	}

	s.assemble(&report, subtasks, results, failedRoot, ctx, failFastID)
	s.emit(Event{Type: EventRunCompleted, Message: string(report.Status), Timestamp: time.Now()})
	return report, nil
}

// blockedBy returns the root failure blocking a subtask, if any. When several
// dependencies failed, the lexically first root keeps the record deterministic.
func (s *Scheduler) blockedBy(st models.Subtask, failedRoot map[string]string) (string, bool) {
	var roots []string
	for _, dep := range st.DependsOn {
		if root, ok := failedRoot[dep]; ok {
			roots = append(roots, root)
		}
	}
	if len(roots) == 0 {
		return "", false
	}
	sort.Strings(roots)
	return roots[0], true
}

// assemble fills in statuses for undispatched subtasks and aggregates the
// run status.
func (s *Scheduler) assemble(report *models.RunReport, subtasks []models.Subtask, results map[string]models.WorkerResult, failedRoot map[string]string, ctx context.Context, failFastID string) {
	var completed, failed, blocked int
	for _, st := range subtasks {
		res, ok := results[st.ID]
		if !ok {
			// Never dispatched: the run was cancelled or fail-fast aborted
			// before this subtask's wave.
			res = models.WorkerResult{SubtaskID: st.ID, Status: models.SubtaskBlocked}
			if root, isBlocked := s.blockedBy(st, failedRoot); isBlocked {
				res.BlockedBy = root
			} else if failFastID != "" {
				res.BlockedBy = failFastID
			}
		}
		switch res.Status {
		case models.SubtaskCompleted:
			completed++
		case models.SubtaskFailed:
			failed++
		case models.SubtaskBlocked:
			blocked++
			report.BlockedSubtasks = append(report.BlockedSubtasks, st.ID)
		}
		report.Results = append(report.Results, res)
	}

	switch {
	case ctx.Err() != nil && failFastID == "":
		report.Status = models.RunCancelled
		report.FailureReason = "task cancelled"
	case failFastID != "":
		report.Status = models.RunFailed
		report.FailureReason = fmt.Sprintf("fail-fast: subtask %s failed", failFastID)
	case failed == 0 && blocked == 0:
		report.Status = models.RunCompleted
	case completed > 0:
		report.Status = models.RunPartiallyCompleted
	default:
		report.Status = models.RunFailed
		report.FailureReason = "no subtasks completed"
	}
	report.FinishedAt = time.Now()
	log.Printf("[scheduler] batch done: %d completed, %d failed, %d blocked (%s)", completed, failed, blocked, report.Status)
}

func (s *Scheduler) sessionID() string {
	if s.sess == nil {
		return ""
	}
	return s.sess.ID()
}
