// Package transfer reports on the SQLite databases written by the file
// transfer tool, one TBL_FSADA table per database.
package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Table is the table the transfer tool writes.
const Table = "TBL_FSADA"

// MissingFileMessage replaces every "file does not exist" error, which
// otherwise differs by path only.
const MissingFileMessage = "The specified file {{file_full_path}} does not exists or is not readable.: Invalid file"

var missingFilePattern = regexp.MustCompile(`^The specified file .* does not exists or is not readable\.: Invalid file`)

// NormalizeError maps an error message to the message it is counted under.
func NormalizeError(msg string) string {
	if missingFilePattern.MatchString(msg) {
		return MissingFileMessage
	}
	return msg
}

// ErrorCount is the number of pending rows with one error message.
type ErrorCount struct {
	Message string
	Count   int
}

// Counts holds the row counters of one or more databases.
type Counts struct {
	Total          int
	Done           int
	Pending        int
	WithDocumentID int
	PendingErrors  int
}

// Add adds other to c.
func (c *Counts) Add(other Counts) {
	c.Total += other.Total
	c.Done += other.Done
	c.Pending += other.Pending
	c.WithDocumentID += other.WithDocumentID
	c.PendingErrors += other.PendingErrors
}

// Stats describes one transfer database.
type Stats struct {
	Name string
	Path string
	Counts

	// Errors is sorted by count, highest first.
	Errors []ErrorCount
}

const nonEmpty = "IS NOT NULL AND TRIM(%[1]s) <> ''"

// Analyze computes the statistics of the database at path.
func Analyze(ctx context.Context, path string) (Stats, error) {
	dsn, err := readOnlyDSN(path)
	if err != nil {
		return Stats{}, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open database; %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	s := Stats{Name: filepath.Base(path), Path: path}
	counters := []struct {
		dst   *int
		where string
	}{
		{&s.Total, "1 = 1"},
		{&s.Done, "is_done = 1"},
		{&s.Pending, "is_done = 0"},
		{&s.WithDocumentID, "cmx_document_id " + fmt.Sprintf(nonEmpty, "cmx_document_id")},
		{&s.PendingErrors, "is_done = 0 AND error_message " + fmt.Sprintf(nonEmpty, "error_message")},
	}
	for _, c := range counters {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", Table, c.where)
		if err := db.QueryRowContext(ctx, query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("failed to count rows; %w", err)
		}
	}

	errs, err := errorBreakdown(ctx, db)
	if err != nil {
		return Stats{}, err
	}
	s.Errors = errs
	return s, nil
}

func errorBreakdown(ctx context.Context, db *sql.DB) ([]ErrorCount, error) {
	query := fmt.Sprintf("SELECT error_message FROM %s WHERE is_done = 0 AND error_message %s",
		Table, fmt.Sprintf(nonEmpty, "error_message"))
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read error messages; %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("failed to read error message; %w", err)
		}
		counts[NormalizeError(msg)]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read error messages; %w", err)
	}

	out := make([]ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, ErrorCount{Message: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return strings.Compare(out[i].Message, out[j].Message) < 0
	})
	return out, nil
}

// readOnlyDSN returns a SQLite URI that opens path read-only, so a missing
// database is never created and no journal is written next to it.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path; %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}
