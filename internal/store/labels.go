package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/splgest/internal/label"
)

// Section is one flattened section in extraction order.
type Section struct {
	Key  string `json:"key"`
	Body string `json:"body"`
}

// Record is a stored label.
type Record struct {
	ID string `json:"id"`
	label.Metadata
	Sections    []Section `json:"sections"`
	SectionText string    `json:"sectionText"`
	ContentHash string    `json:"contentHash"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Summary is the listing form of a Record.
type Summary struct {
	ID            string    `json:"id"`
	SetID         string    `json:"setId"`
	VersionNumber string    `json:"versionNumber"`
	Title         string    `json:"title"`
	DrugName      string    `json:"drugName"`
	EffectiveTime string    `json:"effectiveTime"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewRecord builds a Record from an extraction result. The id is the
// document id, or the content hash when the label carries none.
func NewRecord(res *label.Result, contentHash, source string) *Record {
	rec := &Record{
		ID:          res.DocumentID,
		Metadata:    res.Metadata,
		SectionText: res.SectionText,
		ContentHash: contentHash,
		Source:      source,
	}
	if rec.ID == "" {
		rec.ID = contentHash
	}
	for _, k := range res.SectionKeys {
		rec.Sections = append(rec.Sections, Section{Key: k, Body: res.Sections[k]})
	}
	return rec
}

// Result rebuilds the extraction result shape.
func (r *Record) Result() *label.Result {
	res := &label.Result{
		Metadata:    r.Metadata,
		Sections:    make(map[string]string, len(r.Sections)),
		SectionText: r.SectionText,
	}
	for _, s := range r.Sections {
		res.Sections[s.Key] = s.Body
		res.SectionKeys = append(res.SectionKeys, s.Key)
	}
	return res
}

var metaColumns = []string{
	"document_id", "set_id", "version_number", "product_type", "title",
	"manufacturer", "effective_time", "published_date", "drug_name",
	"route_of_administration", "ndc_code", "generic_name", "dosage_form",
	"substance_name", "inactive_ingredients", "ingredients",
	"marketing_category", "consumed_in", "marketing_date",
}

func metaPtrs(m *label.Metadata) []any {
	return []any{
		&m.DocumentID, &m.SetID, &m.VersionNumber, &m.ProductType, &m.Title,
		&m.Manufacturer, &m.EffectiveTime, &m.PublishedDate, &m.DrugName,
		&m.RouteOfAdministration, &m.NDCCode, &m.GenericName, &m.DosageForm,
		&m.SubstanceName, &m.InactiveIngredients, &m.Ingredients,
		&m.MarketingCategory, &m.ConsumedIn, &m.MarketingDate,
	}
}

func labelColumns() []string {
	cols := []string{"id"}
	cols = append(cols, metaColumns...)
	return append(cols, "section_text", "content_hash", "source", "created_at")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// SaveLabel upserts rec and replaces its sections in one transaction.
func (s *Store) SaveLabel(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return errors.New("save label: empty id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	cols := labelColumns()
	var updates []string
	for _, c := range cols[1:] {
		if c == "created_at" {
			continue
		}
		updates = append(updates, c+" = excluded."+c)
	}
	upsert := fmt.Sprintf(`INSERT INTO labels (%s) VALUES (%s)
ON CONFLICT (id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(updates, ", "))

	args := []any{rec.ID}
	for _, p := range metaPtrs(&rec.Metadata) {
		args = append(args, *p.(*string))
	}
	args = append(args, rec.SectionText, rec.ContentHash, rec.Source, rec.CreatedAt.UTC().Format(timeFormat))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(upsert), args...); err != nil {
		return fmt.Errorf("upsert label %s: %w", rec.ID, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM label_sections WHERE label_id = ?`), rec.ID); err != nil {
		return fmt.Errorf("clear sections %s: %w", rec.ID, err)
	}
	insert := s.rebind(`INSERT INTO label_sections (label_id, position, section_key, body) VALUES (?, ?, ?, ?)`)
	for i, sec := range rec.Sections {
		if _, err := tx.ExecContext(ctx, insert, rec.ID, i, sec.Key, sec.Body); err != nil {
			return fmt.Errorf("insert section %s/%s: %w", rec.ID, sec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit label %s: %w", rec.ID, err)
	}
	return nil
}

// GetLabel loads a label with its sections, or ErrNotFound.
func (s *Store) GetLabel(ctx context.Context, id string) (*Record, error) {
	return s.getBy(ctx, "id", id)
}

// FindByHash returns the label stored for a content hash, or ErrNotFound.
func (s *Store) FindByHash(ctx context.Context, hash string) (*Record, error) {
	return s.getBy(ctx, "content_hash", hash)
}

func (s *Store) getBy(ctx context.Context, column, value string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM labels WHERE %s = ? ORDER BY created_at LIMIT 1`,
		strings.Join(labelColumns(), ", "), column)

	var (
		rec       Record
		createdAt string
	)
	dest := []any{&rec.ID}
	dest = append(dest, metaPtrs(&rec.Metadata)...)
	dest = append(dest, &rec.SectionText, &rec.ContentHash, &rec.Source, &createdAt)

	err := s.db.QueryRowContext(ctx, s.rebind(query), value).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get label by %s: %w", column, err)
	}
	rec.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT section_key, body FROM label_sections WHERE label_id = ? ORDER BY position`), rec.ID)
	if err != nil {
		return nil, fmt.Errorf("get sections %s: %w", rec.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.Key, &sec.Body); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		rec.Sections = append(rec.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return &rec, nil
}

// ListLabels pages through stored labels, newest first. An empty setID lists
// every label.
func (s *Store) ListLabels(ctx context.Context, setID string, limit, offset int) ([]Summary, error) {
	limit = clampLimit(limit, 50, 500)
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, set_id, version_number, title, drug_name, effective_time, source, created_at FROM labels`
	var args []any
	if setID != "" {
		query += ` WHERE set_id = ?`
		args = append(args, setID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.SetID, &sum.VersionNumber, &sum.Title,
			&sum.DrugName, &sum.EffectiveTime, &sum.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteLabel removes a label and its sections. Missing ids are ErrNotFound.
func (s *Store) DeleteLabel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM label_sections WHERE label_id = ?`), id); err != nil {
		return fmt.Errorf("delete sections %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM labels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete label %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// timeFormat is fixed-width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
