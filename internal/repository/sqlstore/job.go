package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/bidflow/internal/db"
	"github.com/garnizeh/bidflow/pkg/models"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

// Enqueue inserts a job into the jobs table and returns the new ID
func (s *Repo) Enqueue(ctx context.Context, j *models.BackgroundJob) (string, error) {
	if j == nil {
		return "", fmt.Errorf("job is nil")
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.Priority == 0 {
		j.Priority = 100
	}
	now := time.Now().UTC()
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = now
	}
	j.Status = models.JobQueued
	j.Created, j.Updated = now, now

	q := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.r.Exec(ctx, q, j.ID, j.Type, string(j.Payload), j.Status, j.Attempts, j.MaxAttempts, j.Priority,
		ms(j.ScheduledAt), nullMs(j.NextTryAt), j.LastError, ms(now), ms(now)); err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}
	return j.ID, nil
}

// jobLease is how long a running job may go without an update before
// another worker may reclaim it.
const jobLease = 5 * time.Minute

// FetchNext claims the next available job respecting priority and schedule.
// The claim is a conditional update, so two workers never run the same job.
func (s *Repo) FetchNext(ctx context.Context, now time.Time) (*models.BackgroundJob, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs
		WHERE ((status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?)
		OR (status = 'running' AND updated <= ?)
		ORDER BY priority ASC, scheduled_at ASC LIMIT 1`
	for range 3 {
		j, err := scanJob(s.r.QueryRow(ctx, q, ms(now), ms(now), ms(now.Add(-jobLease))))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("fetch next job: %w", err)
		}

		claimed, err := affected(s.r.Exec(ctx, `UPDATE jobs SET status = ?, updated = ? WHERE id = ? AND status = ? AND updated = ?`,
			models.JobRunning, ms(now), j.ID, j.Status, ms(j.Updated)))
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		if claimed {
			j.Status = models.JobRunning
			j.Updated = now
			return j, nil
		}
		// another worker took it; look again
	}
	return nil, nil
}

func scanJob(s scanner) (*models.BackgroundJob, error) {
	var (
		j                       models.BackgroundJob
		payload, lastError      sql.NullString
		scheduled, created, upd int64
		nextTry                 sql.NullInt64
	)
	if err := s.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority,
		&scheduled, &nextTry, &lastError, &created, &upd); err != nil {
		return nil, err
	}
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}
	j.ScheduledAt = fromMs(scheduled)
	j.NextTryAt = timePtr(nextTry)
	j.Created = fromMs(created)
	j.Updated = fromMs(upd)
	return &j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (s *Repo) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := s.r.Exec(ctx, q, j.Status, j.Attempts, nullMs(j.NextTryAt), j.LastError, ms(time.Now()), j.ID)
	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (s *Repo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	return s.atomic(ctx, func(r db.Runner) error {
		insert := `INSERT INTO dead_letter_jobs (id, job_id, type, payload, attempts, last_error, failed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err := r.Exec(ctx, insert, uuid.NewString(), j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, ms(time.Now())); err != nil {
			return err
		}
		_, err := r.Exec(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	})
}

// CountJobs reports how many live jobs of a type exist. Used by operators and
// tests to observe the outbox.
func (s *Repo) CountJobs(ctx context.Context, typ string) (int, error) {
	var n int
	if err := s.r.QueryRow(ctx, `SELECT COUNT(1) FROM jobs WHERE type = ?`, typ).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}
