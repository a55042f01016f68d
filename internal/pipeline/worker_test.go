package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/splgest/internal/doctree"
	"github.com/dgallion1/splgest/internal/index"
	"github.com/dgallion1/splgest/internal/store"
)

const labelA = `<?xml version="1.0"?>
<document xmlns="urn:hl7-org:v3">
  <id root="doc-a"/>
  <setId root="set-a"/>
  <title>ALPHA tablets</title>
  <component><structuredBody>
    <component><section><code displayName="INDICATIONS"/><text>Treats hypertension in adults.</text></section></component>
  </structuredBody></component>
</document>`

const labelB = `<?xml version="1.0"?>
<document xmlns="urn:hl7-org:v3">
  <id root="doc-b"/>
  <setId root="set-b"/>
  <title>BETA capsules</title>
</document>`

type fakeIndex struct {
	mu       sync.Mutex
	docs     map[string]index.Document
	passages map[string][]doctree.Passage
	err      error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: map[string]index.Document{}, passages: map[string][]doctree.Passage{}}
}

func (f *fakeIndex) PutDocument(_ context.Context, key string, doc index.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs[key] = doc
	return nil
}

func (f *fakeIndex) PutPassages(_ context.Context, key string, p []doctree.Passage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passages[key] = p
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func zipOf(t *testing.T, files ...[2]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		if err != nil {
			t.Fatalf("create %s: %v", f[0], err)
		}
		w.Write([]byte(f[1]))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func newTestWorker(st LabelStore, idx Indexer) *Worker {
	return NewWorker(st, idx, NewExtractStats(time.Hour), testLogger(), WorkerOptions{Concurrency: 2})
}

func TestWorker_SingleXML(t *testing.T) {
	st := openStore(t)
	idx := newFakeIndex()
	job := NewJob("alpha.xml", []byte(labelA))

	newTestWorker(st, idx).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if len(snap.LabelIDs) != 1 || snap.LabelIDs[0] != "doc-a" {
		t.Errorf("expected [doc-a], got %v", snap.LabelIDs)
	}

	rec, err := st.GetLabel(context.Background(), "doc-a")
	if err != nil {
		t.Fatalf("get label: %v", err)
	}
	if rec.Title != "ALPHA tablets" || rec.Source != "alpha.xml!alpha.xml" {
		t.Errorf("unexpected record title %q source %q", rec.Title, rec.Source)
	}
	if idx.docs["doc-a"].SetID != "set-a" {
		t.Errorf("expected document indexed, got %+v", idx.docs)
	}
	if len(idx.passages["doc-a"]) != 1 || snap.Progress.PassagesIndexed != 1 {
		t.Errorf("expected 1 passage indexed, got %d", snap.Progress.PassagesIndexed)
	}
}

func TestWorker_ArchiveWithBadMemberIsPartial(t *testing.T) {
	st := openStore(t)
	data := zipOf(t,
		[2]string{"a.xml", labelA},
		[2]string{"broken.xml", "<document><id></document>"},
		[2]string{"b.xml", labelB},
		[2]string{"notes.txt", "ignored"},
	)
	job := NewJob("bundle.zip", data)

	newTestWorker(st, nil).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected partial, got %q", snap.Status)
	}
	p := snap.Progress
	if p.DocumentsTotal != 3 || p.DocumentsStored != 2 || p.DocumentsFailed != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
	if len(p.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", p.Errors)
	}
	if snap.LabelIDs[0] != "doc-a" || snap.LabelIDs[1] != "doc-b" {
		t.Errorf("expected labels stored in archive order, got %v", snap.LabelIDs)
	}
}

func TestWorker_DuplicateSkipped(t *testing.T) {
	st := openStore(t)
	w := newTestWorker(st, nil)

	first := NewJob("alpha.xml", []byte(labelA))
	w.Process(context.Background(), first)
	if s := first.Snapshot().Status; s != StatusCompleted {
		t.Fatalf("expected first job completed, got %q", s)
	}

	second := NewJob("alpha-again.xml", []byte(labelA))
	w.Process(context.Background(), second)
	snap := second.Snapshot()
	if snap.Status != StatusDupSkipped {
		t.Errorf("expected duplicate_skipped, got %q", snap.Status)
	}
	if snap.Progress.DocumentsDuplicate != 1 {
		t.Errorf("expected 1 duplicate, got %d", snap.Progress.DocumentsDuplicate)
	}
}

func TestWorker_DuplicateWithinArchive(t *testing.T) {
	st := openStore(t)
	job := NewJob("twice.zip", zipOf(t, [2]string{"a.xml", labelA}, [2]string{"copy/a.xml", labelA}))

	newTestWorker(st, nil).Process(context.Background(), job)

	p := job.Snapshot().Progress
	if p.DocumentsStored != 1 || p.DocumentsDuplicate != 1 {
		t.Errorf("expected 1 stored and 1 duplicate, got %+v", p)
	}
}

func TestWorker_AllFailed(t *testing.T) {
	job := NewJob("bad.xml", []byte("not xml at all"))
	newTestWorker(openStore(t), nil).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected failed, got %q", snap.Status)
	}
	if snap.Progress.DocumentsFailed != 1 {
		t.Errorf("expected 1 failed document, got %d", snap.Progress.DocumentsFailed)
	}
}

func TestWorker_EmptyArchive(t *testing.T) {
	job := NewJob("empty.zip", zipOf(t, [2]string{"readme.txt", "x"}))
	newTestWorker(openStore(t), nil).Process(context.Background(), job)

	if s := job.Snapshot().Status; s != StatusFailed {
		t.Errorf("expected failed, got %q", s)
	}
}

func TestWorker_IndexFailureIsPartial(t *testing.T) {
	st := openStore(t)
	idx := newFakeIndex()
	idx.err = errors.New("index rejected document")
	job := NewJob("alpha.xml", []byte(labelA))

	newTestWorker(st, idx).Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Errorf("expected partial, got %q", snap.Status)
	}
	if snap.Progress.DocumentsStored != 1 {
		t.Errorf("expected label stored despite index failure, got %d", snap.Progress.DocumentsStored)
	}
}
