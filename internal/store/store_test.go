package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/splgest/internal/label"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(docID, setID string) *label.Result {
	return &label.Result{
		Metadata: label.Metadata{
			DocumentID:    docID,
			SetID:         setID,
			VersionNumber: "3",
			Title:         "LISINOPRIL tablets",
			DrugName:      "Lisinopril",
			EffectiveTime: "Mar 15, 2021",
			Ingredients:   "LISINOPRIL, MANNITOL",
		},
		Sections: map[string]string{
			"indications": "INDICATIONS\nHypertension.\n",
			"warnings":    "WARNINGS\nAngioedema.\n",
		},
		SectionKeys: []string{"indications", "warnings"},
		SectionText: "INDICATIONS\nHypertension.",
	}
}

func TestSaveAndGetLabel(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	rec := NewRecord(sampleResult("doc-1", "set-1"), "hash-1", "upload.zip")
	if err := s.SaveLabel(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetLabel(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "LISINOPRIL tablets" || got.Ingredients != "LISINOPRIL, MANNITOL" {
		t.Errorf("unexpected metadata: %+v", got.Metadata)
	}
	if got.ContentHash != "hash-1" || got.Source != "upload.zip" {
		t.Errorf("unexpected provenance: %q %q", got.ContentHash, got.Source)
	}
	if len(got.Sections) != 2 || got.Sections[0].Key != "indications" || got.Sections[1].Key != "warnings" {
		t.Errorf("expected sections in order, got %+v", got.Sections)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	res := got.Result()
	if strings.Join(res.SectionKeys, ",") != "indications,warnings" {
		t.Errorf("expected key order preserved, got %v", res.SectionKeys)
	}
	if res.Sections["warnings"] != "WARNINGS\nAngioedema.\n" {
		t.Errorf("unexpected warnings body %q", res.Sections["warnings"])
	}
}

func TestSaveLabel_UpsertReplacesSections(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.SaveLabel(ctx, NewRecord(sampleResult("doc-1", "set-1"), "h1", "a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	res := sampleResult("doc-1", "set-1")
	res.Title = "Updated"
	res.SectionKeys = []string{"warnings"}
	if err := s.SaveLabel(ctx, NewRecord(res, "h2", "b")); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := s.GetLabel(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Updated" || got.ContentHash != "h2" {
		t.Errorf("expected updated row, got title %q hash %q", got.Title, got.ContentHash)
	}
	if len(got.Sections) != 1 {
		t.Errorf("expected 1 section after replace, got %d", len(got.Sections))
	}
}

func TestNewRecord_FallsBackToHash(t *testing.T) {
	rec := NewRecord(sampleResult("", "set-1"), "abc123", "x.xml")
	if rec.ID != "abc123" {
		t.Errorf("expected hash id, got %q", rec.ID)
	}
}

func TestFindByHash(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.SaveLabel(ctx, NewRecord(sampleResult("doc-1", "set-1"), "deadbeef", "a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.FindByHash(ctx, "deadbeef")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "doc-1" {
		t.Errorf("expected doc-1, got %q", got.ID)
	}
	if _, err := s.FindByHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListLabels(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		set := "set-1"
		if id == "c" {
			set = "set-2"
		}
		rec := NewRecord(sampleResult(id, set), "h-"+id, "src")
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.SaveLabel(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	all, err := s.ListLabels(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" {
		t.Errorf("expected 3 labels newest first, got %+v", all)
	}

	set1, err := s.ListLabels(ctx, "set-1", 1, 0)
	if err != nil {
		t.Fatalf("list set: %v", err)
	}
	if len(set1) != 1 || set1[0].ID != "b" {
		t.Errorf("expected [b], got %+v", set1)
	}

	page2, err := s.ListLabels(ctx, "set-1", 1, 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "a" {
		t.Errorf("expected [a], got %+v", page2)
	}
}

func TestDeleteLabel(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	if err := s.SaveLabel(ctx, NewRecord(sampleResult("doc-1", "set-1"), "h", "a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteLabel(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetLabel(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteLabel(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM label_sections`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected sections removed, got %d", n)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("expected $n placeholders, got %q", got)
	}
	lite := &Store{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("expected unchanged query, got %q", got)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Error("expected error for unknown driver")
	}
}
