package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"yt2pod/internal/database"
)

// Store persists transcript records. CompareAndSetStatus is the only way a
// record changes state and must be atomic per GUID.
type Store interface {
	Get(ctx context.Context, guid string) (Record, error)
	Create(ctx context.Context, rec Record) error
	CompareAndSetStatus(ctx context.Context, guid string, expected Status, next Record) (bool, error)
	List(ctx context.Context) ([]Record, error)
}

// SQLStore keeps records in the shared sqlite state database.
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStore wraps an open state database.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Get returns the record for guid, or a StatusNone record when absent.
func (s *SQLStore) Get(ctx context.Context, guid string) (Record, error) {
	row := s.db.QueryRow(ctx, `SELECT guid, status, external_job_id, error, updated_at FROM transcripts WHERE guid = ?`, guid)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{GUID: guid, Status: StatusNone}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("get transcript: %w", err)
	}
	return rec, nil
}

// Create inserts rec, failing with ErrExists when the GUID is taken.
func (s *SQLStore) Create(ctx context.Context, rec Record) error {
	res, err := s.db.Exec(
		ctx,
		`INSERT INTO transcripts (guid, status, external_job_id, error, updated_at)
         VALUES (?, ?, ?, ?, ?) ON CONFLICT(guid) DO NOTHING`,
		rec.GUID,
		statusOrNone(rec.Status),
		database.NullableString(rec.ExternalJobID),
		database.NullableString(rec.Error),
		database.FormatTime(s.stamp(rec)),
	)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, rec.GUID)
	}
	return nil
}

// CompareAndSetStatus replaces the record for guid with next only while its
// current status equals expected. An absent record counts as StatusNone.
// The check and the write are one SQL statement.
func (s *SQLStore) CompareAndSetStatus(ctx context.Context, guid string, expected Status, next Record) (bool, error) {
	var (
		res sql.Result
		err error
	)
	updated := database.FormatTime(s.stamp(next))
	if expected == StatusNone {
		res, err = s.db.Exec(
			ctx,
			`INSERT INTO transcripts (guid, status, external_job_id, error, updated_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(guid) DO UPDATE SET
                 status = excluded.status,
                 external_job_id = excluded.external_job_id,
                 error = excluded.error,
                 updated_at = excluded.updated_at
             WHERE transcripts.status = ?`,
			guid,
			statusOrNone(next.Status),
			database.NullableString(next.ExternalJobID),
			database.NullableString(next.Error),
			updated,
			StatusNone,
		)
	} else {
		res, err = s.db.Exec(
			ctx,
			`UPDATE transcripts SET status = ?, external_job_id = ?, error = ?, updated_at = ?
             WHERE guid = ? AND status = ?`,
			statusOrNone(next.Status),
			database.NullableString(next.ExternalJobID),
			database.NullableString(next.Error),
			updated,
			guid,
			expected,
		)
	}
	if err != nil {
		return false, fmt.Errorf("compare-and-set transcript: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns every record ordered by GUID.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.Query(ctx, `SELECT guid, status, external_job_id, error, updated_at FROM transcripts ORDER BY guid`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) stamp(rec Record) time.Time {
	if rec.UpdatedAt.IsZero() {
		return s.now()
	}
	return rec.UpdatedAt
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec        Record
		status     string
		externalID sql.NullString
		errText    sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&rec.GUID, &status, &externalID, &errText, &updatedRaw); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.ExternalJobID = externalID.String
	rec.Error = errText.String
	rec.UpdatedAt = database.ParseTime(updatedRaw)
	return rec, nil
}

func statusOrNone(s Status) Status {
	if strings.TrimSpace(string(s)) == "" {
		return StatusNone
	}
	return s
}

// MemoryStore is an in-process Store guarded by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, guid string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[guid]; ok {
		return rec, nil
	}
	return Record{GUID: guid, Status: StatusNone}, nil
}

func (m *MemoryStore) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.GUID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.GUID)
	}
	rec.Status = statusOrNone(rec.Status)
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	m.records[rec.GUID] = rec
	return nil
}

func (m *MemoryStore) CompareAndSetStatus(_ context.Context, guid string, expected Status, next Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := StatusNone
	if rec, ok := m.records[guid]; ok {
		current = rec.Status
	}
	if current != expected {
		return false, nil
	}
	next.GUID = guid
	next.Status = statusOrNone(next.Status)
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	m.records[guid] = next
	return true, nil
}

func (m *MemoryStore) List(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out, nil
}
