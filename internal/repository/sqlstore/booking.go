package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/bidflow/pkg/models"
)

const bookingColumns = `id, token, claim_id, requester_id, status, expires_at, created_at, updated_at`

func scanBooking(s scanner) (*models.BookingAttempt, error) {
	var (
		b                         models.BookingAttempt
		expires, created, updated int64
	)
	if err := s.Scan(&b.ID, &b.Token, &b.ClaimID, &b.RequesterID, &b.Status, &expires, &created, &updated); err != nil {
		return nil, err
	}
	b.ExpiresAt = fromMs(expires)
	b.CreatedAt = fromMs(created)
	b.UpdatedAt = fromMs(updated)
	return &b, nil
}

func (s *Repo) CreateBookingAttempt(ctx context.Context, b *models.BookingAttempt) error {
	if b == nil {
		return fmt.Errorf("booking attempt is nil")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = models.BookingPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = b.CreatedAt

	_, err := s.r.Exec(ctx, `INSERT INTO booking_attempts (`+bookingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Token, b.ClaimID, b.RequesterID, b.Status, ms(b.ExpiresAt), ms(b.CreatedAt), ms(b.UpdatedAt))
	return mapErr(err)
}

func (s *Repo) GetBookingAttempt(ctx context.Context, id string) (*models.BookingAttempt, error) {
	b, err := scanBooking(s.r.QueryRow(ctx, `SELECT `+bookingColumns+` FROM booking_attempts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking attempt: %w", err)
	}
	return b, nil
}

func (s *Repo) GetBookingAttemptByToken(ctx context.Context, token string) (*models.BookingAttempt, error) {
	b, err := scanBooking(s.r.QueryRow(ctx, `SELECT `+bookingColumns+` FROM booking_attempts WHERE token = ?`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking attempt by token: %w", err)
	}
	return b, nil
}

func (s *Repo) SetBookingStatus(ctx context.Context, id, status string, at time.Time) error {
	_, err := s.r.Exec(ctx, `UPDATE booking_attempts SET status = ?, updated_at = ? WHERE id = ?`, status, ms(at), id)
	return err
}

const meetingColumns = `id, booking_attempt_id, event_uri, invitee_email, start_time, end_time, status, canceled_at, created_at, updated_at`

func (s *Repo) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	if m == nil {
		return fmt.Errorf("meeting is nil")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MeetingScheduled
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	_, err := s.r.Exec(ctx, `INSERT INTO meetings (`+meetingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BookingAttemptID, m.EventURI, m.InviteeEmail, ms(m.StartTime), ms(m.EndTime), m.Status,
		nullMs(m.CanceledAt), ms(m.CreatedAt), ms(m.UpdatedAt))
	return mapErr(err)
}

func (s *Repo) GetMeetingByEventURI(ctx context.Context, uri string) (*models.Meeting, error) {
	var (
		m                            models.Meeting
		start, end, created, updated int64
		canceled                     sql.NullInt64
	)
	err := s.r.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE event_uri = ?`, uri).
		Scan(&m.ID, &m.BookingAttemptID, &m.EventURI, &m.InviteeEmail, &start, &end, &m.Status, &canceled, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	m.StartTime = fromMs(start)
	m.EndTime = fromMs(end)
	m.CanceledAt = timePtr(canceled)
	m.CreatedAt = fromMs(created)
	m.UpdatedAt = fromMs(updated)
	return &m, nil
}

func (s *Repo) CancelMeeting(ctx context.Context, id string, at time.Time) (bool, error) {
	return affected(s.r.Exec(ctx, `UPDATE meetings SET status = ?, canceled_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.MeetingCanceled, ms(at), ms(at), id, models.MeetingScheduled))
}
