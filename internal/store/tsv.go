package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportTSV loads a tab-separated file into table. The header row names the
// columns; the table is created with TEXT columns when missing. Short rows
// are padded with empty values, long rows abort the import. It returns the
// number of rows inserted.
func (s *Store) ImportTSV(ctx context.Context, table string, r io.Reader) (int, error) {
	name := Identifier(table)
	if name == "" || name == "labels" || name == "label_sections" {
		return 0, fmt.Errorf("import tsv: invalid table name %q", table)
	}

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("import tsv: empty input")
	}
	if err != nil {
		return 0, fmt.Errorf("import tsv: read header: %w", err)
	}
	cols := columnNames(header)

	quoted := make([]string, len(cols))
	defs := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = `"` + c + `"`
		defs[i] = quoted[i] + " TEXT"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, name, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("create table %s: %w", name, err)
	}

	insert := s.rebind(fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		name, strings.Join(quoted, ", "), placeholders(len(cols))))

	n := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("import tsv: %w", err)
		}
		if len(row) > len(cols) {
			line, _ := cr.FieldPos(0)
			return 0, fmt.Errorf("import tsv: line %d has %d fields, header has %d", line, len(row), len(cols))
		}
		args := make([]any, len(cols))
		for i := range cols {
			if i < len(row) {
				args[i] = row[i]
			} else {
				args[i] = ""
			}
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			line, _ := cr.FieldPos(0)
			return 0, fmt.Errorf("import tsv: line %d: %w", line, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return n, nil
}

// Identifier lowercases s and replaces anything outside [a-z0-9_] with "_".
// Names starting with a digit get a "t_" prefix. All-underscore results are
// empty.
func Identifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, "_") == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "t_" + out
	}
	return out
}

func columnNames(header []string) []string {
	seen := make(map[string]int, len(header))
	cols := make([]string, len(header))
	for i, h := range header {
		c := Identifier(h)
		if c == "" {
			c = "col_" + strconv.Itoa(i+1)
		}
		if n := seen[c]; n > 0 {
			seen[c] = n + 1
			c = c + "_" + strconv.Itoa(n+1)
		} else {
			seen[c] = 1
		}
		cols[i] = c
	}
	return cols
}
