package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"yt2pod/internal/database"
)

// Store persists jobs. Every mutation is guarded so terminal jobs never change.
type Store interface {
	Create(ctx context.Context, req Request, correlationID string) (*Job, error)
	Get(ctx context.Context, id int64) (*Job, error)
	List(ctx context.Context, limit int, statuses ...Status) ([]*Job, error)
	NextPending(ctx context.Context) (*Job, error)
	Claim(ctx context.Context, id int64) (bool, error)
	SetTitle(ctx context.Context, id int64, title string) error
	UpdateProgress(ctx context.Context, id int64, progress Progress, message string) error
	Complete(ctx context.Context, id int64, guids []string, duplicate bool, message string) error
	Fail(ctx context.Context, id int64, message string) error
	FailActive(ctx context.Context, message string) (int64, error)
}

const jobColumns = "id, kind, source, title, status, stage, percent, speed, eta, message, duplicate, episode_guids, correlation_id, created_at, updated_at"

// SQLStore is the sqlite-backed Store.
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStore wraps an open state database.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Create inserts a pending job.
func (s *SQLStore) Create(ctx context.Context, req Request, correlationID string) (*Job, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, errors.New("create job: source is required")
	}
	timestamp := database.FormatTime(s.now())
	res, err := s.db.Exec(
		ctx,
		`INSERT INTO jobs (kind, source, title, status, stage, percent, correlation_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		req.Kind,
		req.Source,
		database.NullableString(req.Title),
		StatusPending,
		StageStarting,
		database.NullableString(correlationID),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a job by identifier, returning nil when it does not exist.
func (s *SQLStore) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status. A
// non-positive limit returns every match.
func (s *SQLStore) List(ctx context.Context, limit int, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// NextPending returns the oldest pending job, or nil when none is waiting.
func (s *SQLStore) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY id ASC LIMIT 1`, StatusPending)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// Claim moves a pending job to processing. It returns false when another
// worker already claimed it or the job is no longer pending.
func (s *SQLStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		database.FormatTime(s.now()),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetTitle records the resolved source title on an active job.
func (s *SQLStore) SetTitle(ctx context.Context, id int64, title string) error {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs SET title = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		database.NullableString(title),
		database.FormatTime(s.now()),
		id,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("set job title: %w", err)
	}
	return s.checkApplied(ctx, id, res)
}

// UpdateProgress records stage progress and moves the job to processing.
func (s *SQLStore) UpdateProgress(ctx context.Context, id int64, progress Progress, message string) error {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs
         SET status = ?, stage = ?, percent = ?, speed = ?, eta = ?, message = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing,
		progress.Stage,
		clampPercent(progress.Percent),
		database.NullableString(progress.Speed),
		database.NullableString(progress.ETA),
		database.NullableString(message),
		database.FormatTime(s.now()),
		id,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return s.checkApplied(ctx, id, res)
}

// Complete marks an active job completed with the GUIDs it produced.
func (s *SQLStore) Complete(ctx context.Context, id int64, guids []string, duplicate bool, message string) error {
	encoded, err := json.Marshal(nonNil(guids))
	if err != nil {
		return fmt.Errorf("encode guids: %w", err)
	}
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs
         SET status = ?, stage = ?, percent = 100, speed = NULL, eta = NULL,
             message = ?, duplicate = ?, episode_guids = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted,
		StageCompleted,
		database.NullableString(message),
		boolToInt(duplicate),
		string(encoded),
		database.FormatTime(s.now()),
		id,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.checkApplied(ctx, id, res)
}

// Fail marks an active job as errored. The current stage is kept so the
// failure point stays visible.
func (s *SQLStore) Fail(ctx context.Context, id int64, message string) error {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs SET status = ?, message = ?, speed = NULL, eta = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusError,
		database.NullableString(message),
		database.FormatTime(s.now()),
		id,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return s.checkApplied(ctx, id, res)
}

// FailActive fails every pending or processing job with message.
func (s *SQLStore) FailActive(ctx context.Context, message string) (int64, error) {
	res, err := s.db.Exec(
		ctx,
		`UPDATE jobs SET status = ?, message = ?, speed = NULL, eta = NULL, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusError,
		message,
		database.FormatTime(s.now()),
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("fail active jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) checkApplied(ctx context.Context, id int64, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	return fmt.Errorf("%w: job %d is %s", ErrInvalidTransition, id, job.Status)
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job           Job
		kind          string
		title         sql.NullString
		status        string
		stage         sql.NullString
		percent       sql.NullFloat64
		speed         sql.NullString
		eta           sql.NullString
		message       sql.NullString
		duplicate     sql.NullInt64
		guids         sql.NullString
		correlationID sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&kind,
		&job.Source,
		&title,
		&status,
		&stage,
		&percent,
		&speed,
		&eta,
		&message,
		&duplicate,
		&guids,
		&correlationID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Title = title.String
	job.Status = Status(status)
	job.Progress = Progress{Stage: Stage(stage.String), Percent: percent.Float64, Speed: speed.String, ETA: eta.String}
	job.Message = message.String
	job.Duplicate = duplicate.Valid && duplicate.Int64 != 0
	job.CorrelationID = correlationID.String
	job.CreatedAt = database.ParseTime(createdRaw)
	job.UpdatedAt = database.ParseTime(updatedRaw)
	if guids.Valid && guids.String != "" {
		if err := json.Unmarshal([]byte(guids.String), &job.EpisodeGUIDs); err != nil {
			return nil, fmt.Errorf("decode episode guids: %w", err)
		}
	}
	return &job, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
