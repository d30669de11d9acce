package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/promptforge/promptforge/args"
	"github.com/promptforge/promptforge/command"
	"github.com/promptforge/promptforge/events"
	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/metrics/prometheus"
	"github.com/promptforge/promptforge/types"
)

const (
	defaultMaxConcurrent    = 16
	defaultExecutionTimeout = 60 * time.Second
)

// ErrShuttingDown is returned for requests arriving after Shutdown.
var ErrShuttingDown = errors.New("pipeline is shutting down")

// Pipeline drives the fixed stage sequence over one ExecutionContext per
// request. Requests run concurrently up to MaxConcurrent; within a request
// the stages are strictly sequential.
type Pipeline struct {
	deps   *Deps
	stages []Stage

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	shutdown chan struct{}
	timeout  time.Duration
	tracer   trace.Tracer
}

// New assembles a pipeline from its dependencies.
func New(deps *Deps) *Pipeline {
	maxConcurrent := deps.Config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	timeout := deps.Config.ExecutionTimeout
	if timeout <= 0 {
		timeout = defaultExecutionTimeout
	}
	return &Pipeline{
		deps:     deps,
		stages:   deps.stages(),
		sem:      semaphore.NewWeighted(maxConcurrent),
		shutdown: make(chan struct{}),
		timeout:  timeout,
		tracer:   otel.Tracer("promptforge/pipeline"),
	}
}

// Execute runs one request through the stage sequence and returns its
// terminal response. Every outcome, including parse and validation
// failures, is a response; the error return covers only infrastructure
// conditions (shutdown, cancelled context, semaphore failure).
func (p *Pipeline) Execute(ctx context.Context, req *types.ExecutionRequest) (*types.ExecutionResponse, error) {
	select {
	case <-p.shutdown:
		return nil, ErrShuttingDown
	default:
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring execution slot: %w", err)
	}
	defer p.sem.Release(1)

	p.wg.Add(1)
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ec := &ExecutionContext{
		CommandID: uuid.NewString(),
		Request:   req,
	}
	ec.Emitter = events.NewEmitter(p.deps.Bus, ec.CommandID, "", req.ChainID)

	ctx = logger.WithCommandID(ctx, ec.CommandID)
	started := time.Now()
	prometheus.RecordPipelineStart()
	ec.Emitter.PipelineStarted(len(p.stages))

	ctx, span := p.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.String("command_id", ec.CommandID)))
	defer span.End()

	p.runStages(ctx, ec)

	status := "ok"
	if ec.Response != nil && ec.Response.IsError {
		status = "error"
		span.SetStatus(codes.Error, "pipeline produced an error response")
	}
	prometheus.RecordPipelineEnd(status, time.Since(started).Seconds())
	if status == "ok" {
		ec.Emitter.PipelineCompleted(time.Since(started), len(p.stages))
	} else {
		ec.Emitter.PipelineFailed(errors.New(ec.Response.Text()), time.Since(started))
	}

	if ec.Response == nil {
		// Every request must terminate with a response; reaching here means
		// a stage contract was violated.
		return types.NewErrorResponse("internal error: pipeline produced no response"), nil
	}
	return ec.Response, nil
}

// runStages walks the fixed sequence. Once a response is set, the remaining
// work stages are skipped; observation and cleanup always run.
func (p *Pipeline) runStages(ctx context.Context, ec *ExecutionContext) {
	for i, stage := range p.stages {
		if ec.Responded() && !alwaysRuns(stage.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			ec.SetResponse(types.NewErrorResponse("request cancelled: " + err.Error()))
			continue
		}

		if err := p.runStage(ctx, i, stage, ec); err != nil {
			ec.SetResponse(responseForError(err))
		}
	}
}

// runStage executes one stage with tracing, logging, and metrics around it.
func (p *Pipeline) runStage(ctx context.Context, index int, stage Stage, ec *ExecutionContext) error {
	name := stage.Name()
	ctx = logger.WithStage(ctx, name)
	ctx, span := p.tracer.Start(ctx, "stage."+name,
		trace.WithAttributes(
			attribute.String("stage", name),
			attribute.Int("index", index),
		))
	defer span.End()

	logger.StageEnter(ec.CommandID, name)
	started := time.Now()
	err := stage.Execute(ctx, ec)
	elapsed := time.Since(started)
	logger.StageExit(ec.CommandID, name, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		prometheus.RecordStage(name, "error", elapsed.Seconds())
		ec.Emitter.StageFailed(name, index, err, elapsed)
		return err
	}
	prometheus.RecordStage(name, "ok", elapsed.Seconds())
	ec.Emitter.StageCompleted(name, index, elapsed)
	return nil
}

// alwaysRuns reports whether a stage ignores the terminal-response sentinel.
func alwaysRuns(name string) bool {
	return name == StageObserve || name == StageCleanup
}

// Shutdown stops admitting requests and waits for in-flight ones, bounded
// by the context deadline.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	close(p.shutdown)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}

// responseForError maps a stage error to the terminal response shape for
// its error kind.
func responseForError(err error) *types.ExecutionResponse {
	var notFound *command.PromptNotFoundError
	if errors.As(err, &notFound) {
		resp := types.NewErrorResponse(notFound.Error())
		resp.SetMeta("error_kind", "resource_not_found")
		resp.SetMeta("identifier", notFound.ID)
		if len(notFound.Suggestions) > 0 {
			resp.SetMeta("suggestions", notFound.Suggestions)
		}
		return resp
	}

	var malformed *command.MalformedOperatorError
	var missing *command.MissingCommandError
	if errors.As(err, &malformed) || errors.As(err, &missing) {
		resp := types.NewErrorResponse(err.Error())
		resp.SetMeta("error_kind", "parsing_failure")
		return resp
	}

	var validation *args.ValidationError
	if errors.As(err, &validation) {
		var b strings.Builder
		fmt.Fprintf(&b, "invalid arguments for %q:\n", validation.PromptID)
		for _, fe := range validation.Errors {
			fmt.Fprintf(&b, "- %s [%s]: %s (example: %s)\n", fe.Argument, fe.Code, fe.Message, fe.Example)
		}
		resp := types.NewErrorResponse(b.String())
		resp.SetMeta("error_kind", "argument_validation")
		fields := make([]map[string]interface{}, 0, len(validation.Errors))
		for _, fe := range validation.Errors {
			fields = append(fields, map[string]interface{}{
				"argument": fe.Argument,
				"code":     fe.Code,
				"message":  fe.Message,
				"example":  fe.Example,
			})
		}
		resp.SetMeta("errors", fields)
		return resp
	}

	logger.Error("pipeline stage failed", "error", err)
	resp := types.NewErrorResponse("internal error: " + err.Error())
	resp.SetMeta("error_kind", "internal")
	return resp
}
