package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docsense/internal/config"
	"github.com/dgallion1/docsense/internal/doctree"
	"github.com/dgallion1/docsense/internal/embed"
	"github.com/dgallion1/docsense/internal/rank"
)

// Orchestrator runs outline and analyze requests and the async job queue
// behind the HTTP API.
type Orchestrator struct {
	jobs   *JobStore
	queue  chan *Job
	worker *Worker
	ranker *rank.Ranker
	model  string
	log    *slog.Logger
	cfg    config.Config

	now func() time.Time

	mu      sync.Mutex // guards stopped and sends on queue
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("orchestrator stopped")

// NewOrchestrator creates the pipeline. Call Start before submitting jobs.
func NewOrchestrator(cfg config.Config, emb embed.Embedder, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:   NewJobStore(cfg.JobTTL),
		queue:  make(chan *Job, cfg.MaxQueueSize),
		worker: NewWorker(log, cfg.DocumentTimeout, cfg.PDFRepair),
		ranker: rank.NewRanker(emb),
		model:  emb.Model(),
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Start launches job worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.JobWorkers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.runJob(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline. It is safe to call more than
// once; later Submit calls fail with ErrStopped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.SetStatus(StatusFailed, "stopped")
		return ErrStopped
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Model returns the embedding model in use.
func (o *Orchestrator) Model() string {
	return o.model
}

// OutlineOne runs the structural stage for a single document.
func (o *Orchestrator) OutlineOne(ctx context.Context, in Input) (*doctree.Outline, error) {
	doc, err := o.worker.Process(ctx, in)
	if err != nil {
		return nil, err
	}
	return &doc.Outline, nil
}

// Outline runs the structural stage for every input concurrently. Results
// are in input order; a failed document carries its error and does not
// affect the others.
func (o *Orchestrator) Outline(ctx context.Context, inputs []Input) []OutlineResult {
	docs, errs := o.processAll(ctx, inputs, nil)
	out := make([]OutlineResult, len(inputs))
	for i, in := range inputs {
		out[i] = OutlineResult{Document: in.Name, Err: errs[i]}
		if docs[i] != nil {
			out[i].Outline = &docs[i].Outline
		}
	}
	return out
}

// processAll runs the per-document chain over inputs with at most
// WorkerCount documents in flight. Per-document errors are returned
// positionally and never cancel siblings.
func (o *Orchestrator) processAll(ctx context.Context, inputs []Input, onDone func()) ([]*doctree.Document, []error) {
	docs := make([]*doctree.Document, len(inputs))
	errs := make([]error, len(inputs))

	var g errgroup.Group
	g.SetLimit(o.cfg.WorkerCount)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			docs[i], errs[i] = o.worker.Process(ctx, in)
			if onDone != nil {
				onDone()
			}
			return nil
		})
	}
	_ = g.Wait()
	return docs, errs
}

// AnalyzeOption customizes a single analyze run.
type AnalyzeOption func(*analyzeRun)

type analyzeRun struct {
	progress func(JobStatus, string)
	docDone  func()
}

// WithProgress reports phase changes and per-document completion.
func WithProgress(phase func(JobStatus, string), docDone func()) AnalyzeOption {
	return func(r *analyzeRun) {
		r.progress = phase
		r.docDone = docDone
	}
}

// Analyze ranks the sections of the request's documents against its
// persona query. inputs must carry the documents named in req; a named
// document without input becomes a warning. Per-document failures are
// warnings; an embedding failure aborts the run.
func (o *Orchestrator) Analyze(ctx context.Context, req Request, inputs []Input, opts ...AnalyzeOption) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var run analyzeRun
	for _, opt := range opts {
		opt(&run)
	}
	phase := func(s JobStatus, p string) {
		if run.progress != nil {
			run.progress(s, p)
		}
	}

	k, n := req.TopK, req.TopN
	if k == 0 {
		k = o.cfg.TopK
	}
	if n == 0 {
		n = o.cfg.TopN
	}
	log := o.log.With("challenge_id", req.ChallengeID, "documents", len(req.Documents), "top_k", k, "top_n", n)

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	// Match inputs to the descriptor order.
	byName := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}
	var ordered []Input
	var warnings []Warning
	for _, name := range req.Documents {
		in, ok := byName[name]
		if !ok {
			log.Warn("document not provided", "document", name)
			warnings = append(warnings, Warning{Document: name, Error: "document not provided"})
			continue
		}
		ordered = append(ordered, in)
	}

	// Phase 1: Structure (join point)
	phase(StatusParsing, "parsing")
	docs, errs := o.processAll(ctx, ordered, run.docDone)
	var sections []doctree.Section
	for i, in := range ordered {
		if errs[i] != nil {
			warnings = append(warnings, Warning{Document: in.Name, Error: errs[i].Error()})
			continue
		}
		sections = append(sections, docs[i].Sections...)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	// Phase 2: Rank and select
	phase(StatusRanking, "ranking")
	ranked, err := o.ranker.RankSections(ctx, req.Query(), sections)
	if err != nil {
		return nil, fmt.Errorf("rank sections: %w", err)
	}
	sel := rank.SelectDiverse(ranked, k)
	if distinct := countDocuments(sections); distinct < k && len(sections) > 0 {
		log.Info("fewer documents than selection size",
			"fallback", "insufficient_documents",
			"distinct_documents", distinct,
			"relaxed", sel.Relaxed(),
			"max_per_document", sel.MaxPerDocument)
	}

	// Phase 3: Refine
	phase(StatusRefining, "refining")
	subs := make([]rank.Subsection, len(sel.Sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.WorkerCount)
	for i, s := range sel.Sections {
		i, s := i, s
		g.Go(func() error {
			sub, err := o.ranker.Refine(gctx, req.Query(), s.Section, n)
			if err != nil {
				return fmt.Errorf("refine %s/%q: %w", s.DocumentID, s.HeadingText, err)
			}
			subs[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("analysis complete",
		"sections", len(sections),
		"selected", len(sel.Sections),
		"warnings", len(warnings),
	)
	return newResult(req, warnings, sel, subs, o.now()), nil
}

func countDocuments(sections []doctree.Section) int {
	seen := make(map[string]bool)
	for _, s := range sections {
		seen[s.DocumentID] = true
	}
	return len(seen)
}

// runJob executes an async analyze job.
func (o *Orchestrator) runJob(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID)
	req := job.Request()

	res, err := o.Analyze(ctx, req, job.Inputs(),
		WithProgress(job.SetStatus, job.IncrDocumentsProcessed))
	job.ReleaseInputs()
	if err != nil {
		log.Error("analysis failed", "error", err)
		job.AddError(err.Error())
		phase := "analyze"
		if errors.Is(err, embed.ErrUnavailable) {
			phase = "embedding"
		}
		job.SetStatus(StatusFailed, phase)
		return
	}

	for _, w := range res.Metadata.Warnings {
		job.AddError(fmt.Sprintf("%s: %s", w.Document, w.Error))
	}
	job.SetResult(res)
	if len(res.Metadata.Warnings) > 0 {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}
