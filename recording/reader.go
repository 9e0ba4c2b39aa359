package recording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"
)

// A Filter selects journal entries. The zero Filter selects everything.
type Filter struct {
	Session string
	Binder  string

	// Path selects a field and everything below it: "Equipment" matches
	// "Equipment" and "Equipment.Head".
	Path string

	// FromTick and ToTick bound the tick, both inclusive. A zero ToTick has
	// no upper bound.
	FromTick uint64
	ToTick   uint64

	Limit  int
	Offset int
}

// where builds the condition of f over a table with the given columns.
// Conditions on columns the table does not have are left out.
func (f Filter) where(columns []string) (string, []any) {
	has := func(name string) bool {
		for _, c := range columns {
			if c == name {
				return true
			}
		}

		return false
	}

	var (
		conds []string
		args  []any
	)

	if f.Session != "" {
		conds = append(conds, "Session = ?")
		args = append(args, f.Session)
	}

	if f.Binder != "" && has("Binder") {
		conds = append(conds, "Binder = ?")
		args = append(args, f.Binder)
	}

	if f.Path != "" && has("Path") {
		conds = append(conds, "(Path = ? OR Path LIKE ?)")
		args = append(args, f.Path, f.Path+".%")
	}

	if f.FromTick > 0 {
		conds = append(conds, "Tick >= ?")
		args = append(args, f.FromTick)
	}

	if f.ToTick > 0 {
		conds = append(conds, "Tick <= ?")
		args = append(args, f.ToTick)
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f Filter) page() string {
	switch {
	case f.Limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	case f.Offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
	default:
		return ""
	}
}

// A JournalReader reads back what a Journal recorded.
type JournalReader struct {
	db *sql.DB
}

// OpenJournal opens a journal file written by a Recorder.
func OpenJournal(path string) (*JournalReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("recording: open journal: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	return NewJournalReader(db), nil
}

// NewJournalReader reads the journal tables of an opened database.
func NewJournalReader(db *sql.DB) *JournalReader {
	return &JournalReader{db: db}
}

// Sessions returns the recorded session ids in ascending order.
func (r *JournalReader) Sessions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT Session FROM %s UNION SELECT Session FROM %s ORDER BY 1",
		TickTable, ChangeTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}

		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// Changes returns the selected field changes in recording order, and how
// many match f without Limit and Offset.
func (r *JournalReader) Changes(ctx context.Context, f Filter) ([]ChangeEntry, int, error) {
	return selectEntries[ChangeEntry](ctx, r.db, ChangeTable, f)
}

// Faults returns the selected access faults like Changes.
func (r *JournalReader) Faults(ctx context.Context, f Filter) ([]FaultEntry, int, error) {
	return selectEntries[FaultEntry](ctx, r.db, FaultTable, f)
}

// Ticks returns the selected tick summaries like Changes. Binder and Path
// do not apply to ticks.
func (r *JournalReader) Ticks(ctx context.Context, f Filter) ([]TickEntry, int, error) {
	return selectEntries[TickEntry](ctx, r.db, TickTable, f)
}

// Close closes the database.
func (r *JournalReader) Close() error {
	return r.db.Close()
}

// selectEntries scans rows of table into entries of type E. The columns are
// the fields of E, as created by CreateTable.
func selectEntries[E any](
	ctx context.Context,
	db *sql.DB,
	table string,
	f Filter,
) ([]E, int, error) {
	columns := structs.Names(new(E))
	where, args := f.where(columns)

	var total int

	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("recording: count %s: %w", table, err)
	}

	query := "SELECT " + strings.Join(columns, ", ") + " FROM " + table + where +
		" ORDER BY Tick, rowid" + f.page()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("recording: query %s: %w", table, err)
	}
	defer rows.Close()

	entries := []E{}
	targets := make([]any, len(columns))

	for rows.Next() {
		var e E

		v := reflect.ValueOf(&e).Elem()
		for i := range targets {
			targets[i] = v.Field(i).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("recording: scan %s: %w", table, err)
		}

		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}
