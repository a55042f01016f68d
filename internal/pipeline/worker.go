package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/splgest/internal/archive"
	"github.com/dgallion1/splgest/internal/chunker"
	"github.com/dgallion1/splgest/internal/doctree"
	"github.com/dgallion1/splgest/internal/index"
	"github.com/dgallion1/splgest/internal/label"
	"github.com/dgallion1/splgest/internal/retry"
	"github.com/dgallion1/splgest/internal/store"
)

// LabelStore is the persistence the worker needs.
type LabelStore interface {
	SaveLabel(ctx context.Context, rec *store.Record) error
	FindByHash(ctx context.Context, hash string) (*store.Record, error)
}

// Indexer receives stored labels and their passages.
type Indexer interface {
	PutDocument(ctx context.Context, key string, doc index.Document) error
	PutPassages(ctx context.Context, key string, passages []doctree.Passage) error
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Concurrency   int
	MaxEntryBytes int64
	Passages      chunker.Config
}

// Worker processes a single upload job.
type Worker struct {
	store LabelStore
	index Indexer // nil disables indexing
	stats *ExtractStats
	log   *slog.Logger
	opts  WorkerOptions
}

func NewWorker(st LabelStore, idx Indexer, stats *ExtractStats, log *slog.Logger, opts WorkerOptions) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Worker{
		store: st,
		index: idx,
		stats: stats,
		log:   log,
		opts:  opts,
	}
}

type document struct {
	name string
	data []byte
}

type extracted struct {
	name string
	hash string
	res  *label.Result
}

// Process runs the full ingest pipeline for a job. Each document is
// extracted on its own; a failing document is recorded and skipped.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	// Phase 1: Unpack
	job.SetStatus(StatusUnpacking, "unpacking")
	docs, err := w.unpack(job.Filename, job.FileData())
	job.releaseData()
	if err != nil {
		log.Error("unpack failed", "error", err)
		job.AddError(fmt.Sprintf("unpack: %s", err))
		job.SetStatus(StatusFailed, "unpacking")
		return
	}
	job.SetTotal(len(docs))
	if len(docs) == 0 {
		job.AddError("no xml documents found")
		job.SetStatus(StatusFailed, "unpacking")
		return
	}
	log.Info("unpacked upload", "documents", len(docs))

	// Phase 2: Extract with bounded concurrency.
	job.SetStatus(StatusExtracting, "extracting")
	ready := w.extractAll(ctx, job, docs, log)
	if ctx.Err() != nil {
		job.AddError(ctx.Err().Error())
		job.SetStatus(StatusFailed, "extracting")
		return
	}

	// Phase 3: Store. Sequential; SQLite has a single writer.
	job.SetStatus(StatusStoring, "storing")
	var stored []*store.Record
	var results []*label.Result
	seen := make(map[string]bool, len(ready))
	for _, e := range ready {
		if seen[e.hash] {
			job.markDuplicate()
			continue
		}
		seen[e.hash] = true
		rec := store.NewRecord(e.res, e.hash, job.Filename+"!"+e.name)
		if err := w.store.SaveLabel(ctx, rec); err != nil {
			log.Error("store failed", "document", e.name, "error", err)
			job.AddError(fmt.Sprintf("store %s: %s", e.name, err))
			job.markStoreFailed()
			continue
		}
		job.markStored(rec.ID)
		stored = append(stored, rec)
		results = append(results, e.res)
	}

	// Phase 4: Index.
	indexFailed := false
	if w.index != nil && len(stored) > 0 {
		job.SetStatus(StatusIndexing, "indexing")
		for i, rec := range stored {
			n, err := w.indexLabel(ctx, rec, results[i], log)
			if err != nil {
				log.Error("index failed", "label_id", rec.ID, "error", err)
				job.AddError(fmt.Sprintf("index %s: %s", rec.ID, err))
				indexFailed = true
				continue
			}
			job.AddPassages(n)
		}
	}

	snap := job.Snapshot()
	p := snap.Progress
	log.Info("ingest complete",
		"stored", p.DocumentsStored,
		"failed", p.DocumentsFailed,
		"duplicates", p.DocumentsDuplicate,
		"passages", p.PassagesIndexed,
	)

	switch {
	case p.DocumentsDuplicate == p.DocumentsTotal:
		job.SetStatus(StatusDupSkipped, "dedup")
	case p.DocumentsStored == 0 && p.DocumentsDuplicate == 0:
		job.SetStatus(StatusFailed, "storing")
	case p.DocumentsFailed > 0 || indexFailed:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

// unpack returns the XML documents of an upload: every .xml member of a ZIP
// (nested ZIPs included) or the upload itself.
func (w *Worker) unpack(filename string, data []byte) ([]document, error) {
	if !archive.IsZip(data) {
		return []document{{name: filename, data: data}}, nil
	}

	var opts []archive.Option
	if w.opts.MaxEntryBytes > 0 {
		opts = append(opts, archive.WithMaxEntryBytes(w.opts.MaxEntryBytes))
	}
	var docs []document
	err := archive.Walk(bytes.NewReader(data), int64(len(data)), func(e archive.Entry) error {
		docs = append(docs, document{name: e.Name, data: e.Data})
		return nil
	}, opts...)
	return docs, err
}

func (w *Worker) extractAll(ctx context.Context, job *Job, docs []document, log *slog.Logger) []extracted {
	type docResult struct {
		out extracted
		dup bool
		err error
		idx int
	}
	results := make(chan docResult, len(docs))
	sem := make(chan struct{}, w.opts.Concurrency)

	for i, d := range docs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results <- docResult{err: ctx.Err(), idx: i}
			continue
		}
		go func(i int, d document) {
			defer func() { <-sem }()
			out, dup, err := w.extractOne(ctx, d, log)
			results <- docResult{out: out, dup: dup, err: err, idx: i}
		}(i, d)
	}

	ordered := make([]*extracted, len(docs))
	for range docs {
		r := <-results
		switch {
		case r.err != nil:
			job.AddError(fmt.Sprintf("%s: %s", docs[r.idx].name, r.err))
			job.recordOutcome(outcomeFailed)
		case r.dup:
			job.recordOutcome(outcomeDuplicate)
		default:
			out := r.out
			ordered[r.idx] = &out
			job.recordOutcome(outcomeExtracted)
		}
	}

	var ready []extracted
	for _, e := range ordered {
		if e != nil {
			ready = append(ready, *e)
		}
	}
	return ready
}

func (w *Worker) extractOne(ctx context.Context, d document, log *slog.Logger) (extracted, bool, error) {
	hash := ContentHashHex(d.data)

	existing, err := w.store.FindByHash(ctx, hash)
	switch {
	case err == nil:
		log.Info("duplicate document, skipping", "document", d.name, "existing_id", existing.ID)
		return extracted{}, true, nil
	case !errors.Is(err, store.ErrNotFound):
		log.Warn("dedup check failed, proceeding", "document", d.name, "error", err)
	}

	start := time.Now()
	res, err := label.Extract(d.data, label.WithLogger(log.With("document", d.name)))
	if w.stats != nil {
		w.stats.Record(time.Since(start), err == nil)
	}
	if err != nil {
		log.Warn("extraction failed", "document", d.name, "error", err)
		return extracted{}, false, err
	}
	return extracted{name: d.name, hash: hash, res: res}, false, nil
}

// indexLabel pushes one label and its passages, retrying transient errors.
// It returns the number of passages sent.
func (w *Worker) indexLabel(ctx context.Context, rec *store.Record, res *label.Result, log *slog.Logger) (int, error) {
	doc := index.Document{
		Key:         rec.ID,
		SetID:       rec.SetID,
		Title:       rec.Title,
		Fields:      rec.Map(),
		SectionKeys: res.SectionKeys,
		ContentHash: rec.ContentHash,
		Source:      rec.Source,
	}
	if err := retry.Default.Do(ctx, log, "put document", func() error { return w.index.PutDocument(ctx, rec.ID, doc) }); err != nil {
		return 0, err
	}

	passages := chunker.Split(res, w.opts.Passages)
	if len(passages) == 0 {
		return 0, nil
	}
	if err := retry.Default.Do(ctx, log, "put passages", func() error { return w.index.PutPassages(ctx, rec.ID, passages) }); err != nil {
		return 0, err
	}
	return len(passages), nil
}
