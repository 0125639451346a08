package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Runner executes one discovery run end to end; the orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req discovery.SearchRequest) (discovery.RunResult, error)
}

// WorkerDeps are the collaborators shared by every worker in a pool.
type WorkerDeps struct {
	Runner Runner
	Runs   discovery.RunStore
	Stats  discovery.SourceStatsStore
	// Publisher and topics are optional; without them results are only
	// persisted.
	Publisher       discovery.Publisher
	CompletionTopic string
	AlertTopic      string
	Logger          *zap.Logger
}

// Worker consumes queue items and executes discovery runs.
type Worker struct {
	queue  discovery.Queue
	deps   WorkerDeps
	logger *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(queue discovery.Queue, deps WorkerDeps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		deps:   deps,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.Request.ID))
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item discovery.QueueItem) {
	runID := item.Request.ID
	if w.deps.Runner == nil {
		w.logger.Error("no runner configured", zap.String("run_id", runID))
		w.updateStatus(ctx, runID, discovery.RunStatusFailed, "no runner configured")
		return
	}

	w.updateStatus(ctx, runID, discovery.RunStatusRunning, "")

	result, err := w.deps.Runner.Run(ctx, item.Request)
	if err != nil {
		w.logger.Error("run failed",
			zap.String("run_id", runID),
			zap.Error(err))
		w.updateStatus(ctx, runID, discovery.RunStatusFailed, err.Error())
		w.publishAlert(ctx, runID, err.Error())
		return
	}

	if w.deps.Runs != nil {
		if err := w.deps.Runs.PutResult(ctx, result); err != nil {
			w.logger.Error("persist run result failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}
	if w.deps.Stats != nil && len(result.Stats) > 0 {
		if err := w.deps.Stats.RecordSourceStats(ctx, runID, result.Stats); err != nil {
			w.logger.Error("persist source stats failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}

	w.publishCompletion(ctx, result)
	if result.Status == discovery.RunStatusDegraded {
		w.publishAlert(ctx, runID, result.ErrorText)
	}

	w.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(result.Status)),
		zap.Int("records", len(result.Records)))
}

func (w *Worker) updateStatus(ctx context.Context, runID string, status discovery.RunStatus, errText string) {
	if w.deps.Runs == nil {
		return
	}
	if err := w.deps.Runs.UpdateRunStatus(ctx, runID, status, errText); err != nil {
		w.logger.Error("update run status failed",
			zap.String("run_id", runID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (w *Worker) publishCompletion(ctx context.Context, result discovery.RunResult) {
	if w.deps.Publisher == nil || w.deps.CompletionTopic == "" {
		return
	}
	payload := map[string]any{
		"run_id":   result.Request.ID,
		"status":   string(result.Status),
		"category": string(result.Category),
		"records":  len(result.Records),
		"finished": result.Finished,
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.deps.CompletionTopic, payload); err != nil {
		w.logger.Warn("publish completion failed",
			zap.String("run_id", result.Request.ID),
			zap.Error(err))
	}
}

func (w *Worker) publishAlert(ctx context.Context, runID, reason string) {
	if w.deps.Publisher == nil || w.deps.AlertTopic == "" {
		return
	}
	payload := map[string]any{
		"run_id": runID,
		"reason": reason,
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.deps.AlertTopic, payload); err != nil {
		w.logger.Warn("publish alert failed",
			zap.String("run_id", runID),
			zap.Error(err))
	}
}
