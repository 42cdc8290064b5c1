// Package pipeline runs the five optimization stages in order against an
// owned knowledge index and an artifact store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/resume-optimizer/internal/agent"
	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/contract"
	"github.com/jonathan/resume-optimizer/internal/knowledge"
	"github.com/jonathan/resume-optimizer/internal/observability"
	"github.com/jonathan/resume-optimizer/internal/pipeline/steps"
	"github.com/jonathan/resume-optimizer/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Tracker records run history. Failures are logged and never halt a run.
type Tracker interface {
	RunStarted(ctx context.Context, id uuid.UUID, in types.RunInputs) error
	StepStarted(ctx context.Context, id uuid.UUID, stage, category string) error
	StepFinished(ctx context.Context, id uuid.UUID, stage, checksum string, stepErr error) error
	RunFinished(ctx context.Context, id uuid.UUID, fingerprint string, runErr error) error
}

// RunScoped is implemented by stores that can attribute writes to a run
// recorded by the Tracker.
type RunScoped interface {
	ForRun(id uuid.UUID) artifacts.Store
}

// Options holds the collaborators of an Orchestrator.
type Options struct {
	Store  artifacts.Store
	Index  *knowledge.Index
	Runner RunnerFactory
	// Stages defaults to the embedded stage table.
	Stages     []steps.Definition
	Metrics    *observability.Metrics
	Tracker    Tracker
	OnProgress ProgressCallback
	Logger     *slog.Logger
}

// Result summarizes a completed run.
type Result struct {
	RunID       uuid.UUID
	Fingerprint string
	Artifacts   []artifacts.Artifact
	Duration    time.Duration
}

// Orchestrator executes one run. Create a new one for every run.
type Orchestrator struct {
	store      artifacts.Store
	index      *knowledge.Index
	newRunner  RunnerFactory
	stages     []steps.Definition
	metrics    *observability.Metrics
	tracker    Tracker
	onProgress ProgressCallback
	log        *slog.Logger

	used atomic.Bool
}

// New creates an Orchestrator. Store, Index and Runner are required.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("artifact store is required")
	}
	if opts.Index == nil {
		return nil, errors.New("knowledge index is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner factory is required")
	}

	if err := contract.CheckSchemas(); err != nil {
		return nil, err
	}

	stages := opts.Stages
	if stages == nil {
		stages = steps.Default()
	} else if err := steps.Validate(stages); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:      opts.Store,
		index:      opts.Index,
		newRunner:  opts.Runner,
		stages:     stages,
		metrics:    opts.Metrics,
		tracker:    opts.Tracker,
		onProgress: opts.OnProgress,
		log:        logger.With("component", "pipeline"),
	}, nil
}

// ValidateInputs reports every missing or invalid run input. An empty
// document is reported as a knowledge.EmptyDocumentError cause.
func ValidateInputs(in types.RunInputs) error {
	var fields []string
	var cause error

	if len(in.Document) == 0 {
		fields = append(fields, "document")
		cause = &knowledge.EmptyDocumentError{Reason: "no resume document supplied"}
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &InputError{Fields: append(fields, "(inputs)"), Cause: err}
		}
		for _, fe := range verrs {
			fields = append(fields, fieldName(fe))
		}
		if cause == nil {
			cause = err
		}
	}

	if len(fields) > 0 {
		return &InputError{Fields: fields, Cause: cause}
	}
	return nil
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "JobURL":
		return "job_url"
	case "CompanyName":
		return "company_name"
	default:
		return strings.ToLower(fe.Field())
	}
}

// Run validates the inputs, rebuilds the knowledge index from the document,
// clears previous artifacts and executes every stage in order. The first
// failure halts the run and is returned as a *StageError. The index is
// disposed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, in types.RunInputs, creds types.Credentials) (*Result, error) {
	if !o.used.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	if err := ValidateInputs(in); err != nil {
		return nil, err
	}

	runner, err := o.newRunner(ctx, creds)
	if err != nil {
		return nil, &InputError{Fields: []string{"credentials"}, Cause: err}
	}
	defer func() {
		if err := runner.Client.Close(); err != nil {
			o.log.Warn("failed to close reasoning client", "error", err)
		}
	}()
	defer o.dispose()

	start := time.Now()
	res := &Result{RunID: uuid.New()}
	log := o.log.With("run_id", res.RunID.String())
	if o.track("run start", func() error { return o.tracker.RunStarted(ctx, res.RunID, in) }) {
		if rs, ok := o.store.(RunScoped); ok {
			o.store = rs.ForRun(res.RunID)
		}
	}

	err = o.execute(ctx, res, in, runner, log)
	res.Duration = time.Since(start)
	o.track("run finish", func() error {
		return o.tracker.RunFinished(context.WithoutCancel(ctx), res.RunID, res.Fingerprint, err)
	})
	if err != nil {
		log.Error("run failed", "error", err, "duration", res.Duration)
		return nil, err
	}

	log.Info("run completed", "artifacts", len(res.Artifacts), "duration", res.Duration)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, res *Result, in types.RunInputs, runner *agent.Runner, log *slog.Logger) error {
	id := res.RunID.String()

	o.emit(ProgressEvent{RunID: id, Stage: SetupStage, Status: StatusStarted, Message: "Ingesting resume into knowledge index"})
	fp, err := o.index.Rebuild(ctx, in.Document)
	o.metrics.ObserveRebuild(err == nil, o.index.Stats().Chunks)
	if err != nil {
		o.emit(ProgressEvent{RunID: id, Stage: SetupStage, Status: StatusFailed, Message: err.Error()})
		return &StageError{Stage: SetupStage, Cause: err}
	}
	res.Fingerprint = fp
	log.Info("knowledge index ready", "fingerprint", fp[:12])

	if err := o.store.ClearAll(ctx); err != nil {
		o.emit(ProgressEvent{RunID: id, Stage: SetupStage, Status: StatusFailed, Message: err.Error()})
		return &StageError{Stage: SetupStage, Cause: err}
	}
	o.emit(ProgressEvent{RunID: id, Stage: SetupStage, Status: StatusCompleted, Message: "Knowledge index rebuilt; previous artifacts cleared"})

	params := in.Params()
	for i, def := range o.stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: def.Name, Cause: err}
		}

		o.emit(ProgressEvent{
			RunID:    id,
			Stage:    def.Name,
			Category: def.Category,
			Status:   StatusStarted,
			Message:  fmt.Sprintf("Step %d/%d: %s", i+1, len(o.stages), def.Name),
		})
		o.track("step start", func() error {
			return o.tracker.StepStarted(ctx, res.RunID, def.Name, def.Category)
		})

		stageStart := time.Now()
		a, err := o.runStage(ctx, runner, def, params)
		elapsed := time.Since(stageStart)
		o.metrics.ObserveStage(def.Name, err == nil, elapsed)

		checksum := ""
		if a != nil {
			checksum = a.Checksum
		}
		o.track("step finish", func() error {
			return o.tracker.StepFinished(context.WithoutCancel(ctx), res.RunID, def.Name, checksum, err)
		})

		if err != nil {
			log.Error("stage failed", "stage", def.Name, "error", err, "duration", elapsed)
			o.emit(ProgressEvent{
				RunID: id, Stage: def.Name, Category: def.Category,
				Status: StatusFailed, Message: err.Error(),
			})
			return &StageError{Stage: def.Name, Cause: err}
		}

		log.Info("stage completed", "stage", def.Name, "artifact", a.Name, "duration", elapsed)
		o.emit(ProgressEvent{
			RunID: id, Stage: def.Name, Category: def.Category,
			Status: StatusCompleted, Message: fmt.Sprintf("Wrote %s", a.Name), Artifact: a.Name,
		})
		res.Artifacts = append(res.Artifacts, *a)
	}
	return nil
}

// runStage resolves inputs, runs the agent, validates its output against the
// stage contract and stores the artifact.
func (o *Orchestrator) runStage(ctx context.Context, runner *agent.Runner, def steps.Definition, params map[string]string) (*artifacts.Artifact, error) {
	inputs, err := steps.ResolveInputs(ctx, o.store, def)
	if err != nil {
		return nil, err
	}

	var handle *knowledge.Handle
	if def.Knowledge != nil {
		handle, err = o.index.Query(def.Name)
		if err != nil {
			return nil, err
		}
	}

	c, err := def.Contract()
	if err != nil {
		return nil, err
	}

	out, err := runner.Run(ctx, def.Stage(), agent.Inputs{Params: params, Artifacts: inputs}, handle)
	if err != nil {
		return nil, err
	}

	rec, err := c.Validate(out.Raw)
	if err != nil {
		return nil, err
	}
	if err := rec.AddSources(out.Sources); err != nil {
		return nil, err
	}

	a := rec.Artifact()
	if err := o.store.Put(ctx, a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (o *Orchestrator) dispose() {
	if err := o.index.Dispose(); err != nil {
		o.log.Warn("knowledge index teardown incomplete", "error", err)
	}
	o.metrics.ObserveDispose()
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.onProgress != nil {
		o.onProgress(ev)
	}
}

// track reports whether the event was recorded.
func (o *Orchestrator) track(what string, fn func() error) bool {
	if o.tracker == nil {
		return false
	}
	if err := fn(); err != nil {
		o.log.Warn("failed to record run history", "event", what, "error", err)
		return false
	}
	return true
}
