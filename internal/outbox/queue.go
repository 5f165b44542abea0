// Package outbox reads locally modified records that still have to be pushed
// to the server and marks them synced once the server has accepted them.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/nutrinest/internal/database"
	"github.com/tildaslashalef/nutrinest/internal/loggy"
)

// Kind names the type of a syncable record
type Kind string

// Record is a locally modified row awaiting push
type Record struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Revision  int64           `json:"revision"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Ack identifies the exact version of a record the server accepted
type Ack struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Revision int64  `json:"revision"`
}

// Ack returns the acknowledgement for this version of the record
func (r Record) Ack() Ack {
	return Ack{ID: r.ID, Kind: r.Kind, Revision: r.Revision}
}

// Acks returns the acknowledgements for records
func Acks(records []Record) []Ack {
	acks := make([]Ack, len(records))
	for i, r := range records {
		acks[i] = r.Ack()
	}
	return acks
}

// Queue is the outbound sync queue
type Queue interface {
	// Pending returns every unsynced record, oldest first
	Pending(ctx context.Context) ([]Record, error)

	// Acknowledge marks the given record versions synced. Acknowledging a
	// version twice, or a version that has since been modified, changes nothing.
	Acknowledge(ctx context.Context, acks []Ack) error
}

// Table describes a syncable table. It must have id, revision, pending_sync,
// created_at and synced_at columns.
type Table struct {
	Kind    Kind
	Name    string
	Columns []string // serialized into the payload
}

// SQLQueue implements Queue over syncable SQLite tables
type SQLQueue struct {
	db     *database.DB
	tables map[Kind]Table
	order  []Kind
	logger *loggy.Logger
	now    func() time.Time
}

// NewSQLQueue creates a queue over tables
func NewSQLQueue(db *database.DB, logger *loggy.Logger, tables ...Table) *SQLQueue {
	q := &SQLQueue{
		db:     db,
		tables: make(map[Kind]Table, len(tables)),
		logger: logger,
		now:    time.Now,
	}
	for _, t := range tables {
		q.tables[t.Kind] = t
		q.order = append(q.order, t.Kind)
	}
	return q
}

// Pending returns every unsynced record across all tables, ordered by
// creation time with ties broken by id
func (q *SQLQueue) Pending(ctx context.Context) ([]Record, error) {
	var records []Record
	for _, kind := range q.order {
		batch, err := q.pendingIn(ctx, q.tables[kind])
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	return records, nil
}

func (q *SQLQueue) pendingIn(ctx context.Context, t Table) ([]Record, error) {
	columns := append([]string{"id", "revision", "created_at"}, t.Columns...)

	query, args, err := squirrel.Select(columns...).
		From(t.Name).
		Where(squirrel.Eq{"pending_sync": true}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building pending %s query: %w", t.Name, err)
	}

	rows, err := q.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing pending %s query: %w", t.Name, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec := Record{Kind: t.Kind}
		values := make([]any, len(t.Columns))
		dest := []any{&rec.ID, &rec.Revision, &rec.CreatedAt}
		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning pending %s row: %w", t.Name, err)
		}

		payload := make(map[string]any, len(t.Columns)+2)
		payload["id"] = rec.ID
		payload["revision"] = rec.Revision
		for i, col := range t.Columns {
			if b, ok := values[i].([]byte); ok {
				payload[col] = string(b)
				continue
			}
			payload[col] = values[i]
		}

		rec.Payload, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", t.Name, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending %s rows: %w", t.Name, err)
	}

	return records, nil
}

// Acknowledge marks the given record versions synced in a single transaction
func (q *SQLQueue) Acknowledge(ctx context.Context, acks []Ack) error {
	if len(acks) == 0 {
		return nil
	}

	touched := make(map[string]struct{})
	for _, a := range acks {
		t, ok := q.tables[a.Kind]
		if !ok {
			return fmt.Errorf("unknown record kind: %s", a.Kind)
		}
		touched[t.Name] = struct{}{}
	}
	tables := make([]string, 0, len(touched))
	for name := range touched {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	now := q.now()
	var updated int64

	err := q.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, a := range acks {
			t := q.tables[a.Kind]
			query, args, err := squirrel.Update(t.Name).
				Set("pending_sync", false).
				Set("synced_at", now).
				Where(squirrel.Eq{"id": a.ID}).
				Where(squirrel.Eq{"revision": a.Revision}).
				Where(squirrel.Eq{"pending_sync": true}).
				ToSql()
			if err != nil {
				return fmt.Errorf("building acknowledge query: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("acknowledging %s %s: %w", a.Kind, a.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				updated += n
			}
		}
		return nil
	}, tables...)
	if err != nil {
		return err
	}

	q.logger.Debug("Acknowledged pushed records", "requested", len(acks), "updated", updated)
	return nil
}
