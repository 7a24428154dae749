package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/cypherqa-core-poc-v1/server/internal/agent/metrics"
	"github.com/cypherqa-core-poc-v1/server/internal/agent/model"
	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/pipeline"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/validator"
	logx "github.com/cypherqa-core-poc-v1/server/pkg/logger"
)

const timedOut = "task timed out"

// TaskRouter runs one task to completion.
type TaskRouter interface {
	Route(ctx context.Context, task model.Task) model.TaskResult
}

// Dispatcher fans tasks out to a bounded pool and joins their results.
type Dispatcher struct {
	router        TaskRouter
	maxConcurrent int
	timeout       time.Duration
	metrics       *metrics.Metrics
}

func NewDispatcher(r TaskRouter, cfg model.RouterConfig, m *metrics.Metrics) *Dispatcher {
	n := cfg.MaxConcurrentTasks
	if n <= 0 {
		n = 1
	}
	return &Dispatcher{router: r, maxConcurrent: n, timeout: cfg.TaskTimeout, metrics: m}
}

// Dispatch runs every task and returns results in submission order. A failing
// task never cancels its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []model.Task) []model.TaskResult {
	results := make([]model.TaskResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	p := pool.New().WithMaxGoroutines(d.maxConcurrent)
	for i, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		p.Go(func() {
			results[i] = d.run(ctx, task)
		})
	}
	p.Wait()

	for _, r := range results {
		d.metrics.ObserveTask(r.Tool, outcome(r))
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, task model.Task) model.TaskResult {
	if d.timeout <= 0 {
		return d.safeRoute(ctx, task)
	}

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan model.TaskResult, 1)
	go func() {
		done <- d.safeRoute(tctx, task)
	}()

	select {
	case res := <-done:
		return res
	case <-tctx.Done():
		msg := "task cancelled"
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			msg = fmt.Sprintf("%s after %s", timedOut, d.timeout)
		}
		logx.Warn().Str("task_id", task.ID).Str("task", task.Question).Msg(msg)
		return failed(task, msg)
	}
}

func (d *Dispatcher) safeRoute(ctx context.Context, task model.Task) (res model.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().
				Str("task_id", task.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Task panicked")
			res = failed(task, fmt.Sprintf("task panicked: %v", r))
		}
	}()
	return d.router.Route(ctx, task)
}

func failed(task model.Task, msg string) model.TaskResult {
	return model.TaskResult{
		TaskID:  task.ID,
		Task:    task.Question,
		Tool:    model.ToolNone,
		Records: pipeline.NoResults(),
		Errors:  []validator.Issue{{Kind: errx.KindExecution, Message: msg}},
		Empty:   true,
	}
}

func outcome(r model.TaskResult) string {
	switch {
	case len(r.Errors) > 0:
		for _, e := range r.Errors {
			if e.Kind == errx.KindExecution && strings.HasPrefix(e.Message, timedOut) {
				return metrics.TaskTimeout
			}
		}
		return metrics.TaskFailed
	case r.Empty:
		return metrics.TaskEmpty
	default:
		return metrics.TaskOK
	}
}
