package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/schema"
	"github.com/garnizeh/bidflow/internal/webhook"
	"github.com/garnizeh/bidflow/pkg/models"
	"github.com/garnizeh/bidflow/pkg/repository"
)

const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
)

// Results reported by HandleNotification.
const (
	ActionCreated  = "created"
	ActionExisting = "existing"
	ActionCanceled = "canceled"
	ActionNoop     = "noop"
	ActionIgnored  = "ignored"
)

type Notification struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

type Payload struct {
	Event struct {
		URI       string `json:"uri"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	} `json:"event"`
	Invitee struct {
		Email string `json:"email"`
	} `json:"invitee"`
	Tracking struct {
		UTMContent *string `json:"utm_content"`
	} `json:"tracking"`
}

// Result is the outcome of one notification. Meeting is set whenever the
// notification concerned a known meeting.
type Result struct {
	Action  string          `json:"action"`
	Meeting *models.Meeting `json:"meeting,omitempty"`
}

// HandleNotification verifies and applies one scheduling notification.
// Replays are answered with the meeting already on record.
func (s *Service) HandleNotification(ctx context.Context, signature string, body []byte) (*Result, error) {
	if err := webhook.Verify([]byte(s.cfg.WebhookSecret), signature, body, s.clock.Now(), s.cfg.Tolerance); err != nil {
		s.logger.Warn("scheduling notification rejected", slog.Any("err", err))
		return nil, err
	}
	if s.schemas != nil {
		if err := s.schemas.Validate(ctx, schema.SchedulingEvent, body); err != nil {
			return nil, err
		}
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, apperr.New(apperr.ErrValidation, "decode notification: %v", err)
	}

	var (
		res *Result
		err error
	)
	switch n.Event {
	case EventInviteeCreated:
		res, err = s.inviteeCreated(ctx, n.Payload)
	case EventInviteeCanceled:
		res, err = s.inviteeCanceled(ctx, n.Payload)
	default:
		res = &Result{Action: ActionIgnored}
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("scheduling notification handled",
		slog.String("event", n.Event),
		slog.String("event_uri", n.Payload.Event.URI),
		slog.String("action", res.Action),
	)
	return res, nil
}

func (s *Service) inviteeCreated(ctx context.Context, p Payload) (*Result, error) {
	token := ""
	if p.Tracking.UTMContent != nil {
		token = *p.Tracking.UTMContent
	}
	if token == "" || p.Event.URI == "" || p.Invitee.Email == "" || p.Event.StartTime == "" || p.Event.EndTime == "" {
		return nil, apperr.New(apperr.ErrValidation, "tracking token, event uri, invitee email, start and end time are required")
	}
	start, err := time.Parse(time.RFC3339, p.Event.StartTime)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "invalid start_time %q", p.Event.StartTime)
	}
	end, err := time.Parse(time.RFC3339, p.Event.EndTime)
	if err != nil {
		return nil, apperr.New(apperr.ErrValidation, "invalid end_time %q", p.Event.EndTime)
	}

	existing, err := s.store.GetMeetingByEventURI(ctx, p.Event.URI)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Result{Action: ActionExisting, Meeting: existing}, nil
	}

	booking, err := s.store.GetBookingAttemptByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperr.New(apperr.ErrNotFound, "no booking attempt for token %s", token)
	}

	now := s.clock.Now().UTC()
	m := &models.Meeting{
		BookingAttemptID: booking.ID,
		EventURI:         p.Event.URI,
		InviteeEmail:     p.Invitee.Email,
		StartTime:        start.UTC(),
		EndTime:          end.UTC(),
		Status:           models.MeetingScheduled,
		CreatedAt:        now,
	}
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateMeeting(ctx, m); err != nil {
			return err
		}
		if err := tx.SetBookingStatus(ctx, booking.ID, models.BookingConfirmed, now); err != nil {
			return fmt.Errorf("confirm booking: %w", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		existing, err := s.store.GetMeetingByEventURI(ctx, p.Event.URI)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("meeting %s collided but is missing", p.Event.URI)
		}
		return &Result{Action: ActionExisting, Meeting: existing}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Action: ActionCreated, Meeting: m}, nil
}

func (s *Service) inviteeCanceled(ctx context.Context, p Payload) (*Result, error) {
	if p.Event.URI == "" {
		return nil, apperr.New(apperr.ErrValidation, "event uri is required")
	}
	m, err := s.store.GetMeetingByEventURI(ctx, p.Event.URI)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return &Result{Action: ActionNoop}, nil
	}
	if m.Status == models.MeetingCanceled {
		return &Result{Action: ActionNoop, Meeting: m}, nil
	}

	now := s.clock.Now().UTC()
	action := ActionCanceled
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		ok, err := tx.CancelMeeting(ctx, m.ID, now)
		if err != nil {
			return fmt.Errorf("cancel meeting: %w", err)
		}
		if !ok {
			action = ActionNoop
			return nil
		}
		return tx.SetBookingStatus(ctx, m.BookingAttemptID, models.BookingCanceled, now)
	})
	if err != nil {
		return nil, err
	}
	if action == ActionCanceled {
		m.Status = models.MeetingCanceled
		m.CanceledAt = &now
		m.UpdatedAt = now
	}
	return &Result{Action: action, Meeting: m}, nil
}
