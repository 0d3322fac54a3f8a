package scheduling_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/repository/sqlstore"
	"github.com/garnizeh/bidflow/internal/scheduling"
	"github.com/garnizeh/bidflow/internal/schema"
	"github.com/garnizeh/bidflow/internal/testutil"
	"github.com/garnizeh/bidflow/internal/webhook"
	"github.com/garnizeh/bidflow/pkg/models"
)

const secret = "sched_test"

var (
	epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	owner = models.Actor{ID: "owner-1", Role: models.RoleOwner}
)

func setup(t *testing.T) (*sqlstore.Repo, *clockwork.FakeClock, *scheduling.Service, *models.Claim) {
	t.Helper()
	s := testutil.NewStore(t)
	clock := clockwork.NewFakeClockAt(epoch)
	reg, err := schema.Default()
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	svc := scheduling.NewService(s, reg, clock, scheduling.Config{
		WebhookSecret: secret,
		Link:          "https://book.example/claims?src=app",
	}, nil)
	return s, clock, svc, testutil.SeedClaim(t, s, owner.ID)
}

func send(t *testing.T, clock clockwork.Clock, svc *scheduling.Service, event string, payload map[string]any) (*scheduling.Result, error) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return svc.HandleNotification(context.Background(), webhook.Header([]byte(secret), clock.Now().Unix(), body), body)
}

func created(token, uri string) map[string]any {
	return map[string]any{
		"event": map[string]any{
			"uri":        uri,
			"start_time": "2025-03-03T15:00:00Z",
			"end_time":   "2025-03-03T15:30:00Z",
		},
		"invitee":  map[string]any{"email": "owner@example.com"},
		"tracking": map[string]any{"utm_content": token},
	}
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	s, _, svc, claim := setup(t)

	res, err := svc.CreateBooking(ctx, owner, scheduling.BookingRequest{ClaimID: claim.ID})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if len(res.Token) != 26 {
		t.Fatalf("token %q is not a ULID", res.Token)
	}
	if !res.ExpiresAt.Equal(epoch.Add(24 * time.Hour)) {
		t.Fatalf("expires at %v", res.ExpiresAt)
	}
	u, err := url.Parse(res.Link)
	if err != nil || u.Query().Get("utm_content") != res.Token || u.Query().Get("src") != "app" {
		t.Fatalf("link %q: %v", res.Link, err)
	}

	b, err := s.GetBookingAttemptByToken(ctx, res.Token)
	if err != nil || b == nil || b.Status != models.BookingPending || b.RequesterID != owner.ID {
		t.Fatalf("booking: %+v %v", b, err)
	}
}

func TestCreateBooking_Rejections(t *testing.T) {
	ctx := context.Background()
	_, _, svc, claim := setup(t)

	stranger := models.Actor{ID: "c-9", Role: models.RoleContractor}
	if _, err := svc.CreateBooking(ctx, stranger, scheduling.BookingRequest{ClaimID: claim.ID}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger: expected forbidden, got %v", err)
	}
	if _, err := svc.CreateBooking(ctx, owner, scheduling.BookingRequest{ClaimID: "missing"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing claim: expected not found, got %v", err)
	}
	if _, err := svc.CreateBooking(ctx, owner, scheduling.BookingRequest{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty: expected validation error, got %v", err)
	}
}

func TestInviteeCreated_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, clock, svc, claim := setup(t)
	booking, err := svc.CreateBooking(ctx, owner, scheduling.BookingRequest{ClaimID: claim.ID})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	first, err := send(t, clock, svc, scheduling.EventInviteeCreated, created(booking.Token, "https://sched.example/events/1"))
	if err != nil || first.Action != scheduling.ActionCreated {
		t.Fatalf("first delivery: %+v %v", first, err)
	}
	second, err := send(t, clock, svc, scheduling.EventInviteeCreated, created(booking.Token, "https://sched.example/events/1"))
	if err != nil || second.Action != scheduling.ActionExisting || second.Meeting.ID != first.Meeting.ID {
		t.Fatalf("second delivery: %+v %v", second, err)
	}

	b, err := s.GetBookingAttemptByToken(ctx, booking.Token)
	if err != nil || b.Status != models.BookingConfirmed {
		t.Fatalf("booking: %+v %v", b, err)
	}
	m, err := s.GetMeetingByEventURI(ctx, "https://sched.example/events/1")
	if err != nil || m == nil || !m.StartTime.Equal(time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("meeting: %+v %v", m, err)
	}
}

func TestInviteeCreated_ConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	_, clock, svc, claim := setup(t)
	booking, err := svc.CreateBooking(ctx, owner, scheduling.BookingRequest{ClaimID: claim.ID})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	body, err := json.Marshal(map[string]any{
		"event":   scheduling.EventInviteeCreated,
		"payload": created(booking.Token, "https://sched.example/events/2"),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sig := webhook.Header([]byte(secret), clock.Now().Unix(), body)

	const n = 5
	var (
		wg  sync.WaitGroup
		ids = make([]string, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.HandleNotification(ctx, sig, body)
			if err == nil {
				ids[i] = res.Meeting.ID
			}
		}()
	}
	wg.Wait()

	for i := range n {
		if ids[i] == "" || ids[i] != ids[0] {
			t.Fatalf("deliveries disagree on the meeting: %v", ids)
		}
	}
}

func TestInviteeCreated_Errors(t *testing.T) {
	_, clock, svc, _ := setup(t)

	if _, err := send(t, clock, svc, scheduling.EventInviteeCreated, created("01UNKNOWNTOKEN0000000000000", "https://sched.example/events/3")); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown token: expected not found, got %v", err)
	}

	missing := created("tok", "https://sched.example/events/3")
	delete(missing, "invitee")
	if _, err := send(t, clock, svc, scheduling.EventInviteeCreated, missing); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("missing email: expected validation error, got %v", err)
	}

	body := []byte(`{"event":"invitee.created","payload":{}}`)
	stale := webhook.Header([]byte(secret), epoch.Add(-4*time.Minute).Unix(), body)
	if _, err := svc.HandleNotification(context.Background(), stale, body); !errors.Is(err, apperr.ErrSignature) {
		t.Fatalf("stale signature: expected signature error, got %v", err)
	}
}

func TestInviteeCanceled(t *testing.T) {
	ctx := context.Background()
	s, clock, svc, claim := setup(t)
	booking, err := svc.CreateBooking(ctx, owner, scheduling.BookingRequest{ClaimID: claim.ID})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	canceled := map[string]any{"event": map[string]any{"uri": "https://sched.example/events/4"}}
	if res, err := send(t, clock, svc, scheduling.EventInviteeCanceled, canceled); err != nil || res.Action != scheduling.ActionNoop {
		t.Fatalf("cancel before create: %+v %v", res, err)
	}

	if _, err := send(t, clock, svc, scheduling.EventInviteeCreated, created(booking.Token, "https://sched.example/events/4")); err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := send(t, clock, svc, scheduling.EventInviteeCanceled, canceled)
	if err != nil || res.Action != scheduling.ActionCanceled || res.Meeting.CanceledAt == nil {
		t.Fatalf("cancel: %+v %v", res, err)
	}
	if res, err := send(t, clock, svc, scheduling.EventInviteeCanceled, canceled); err != nil || res.Action != scheduling.ActionNoop {
		t.Fatalf("repeat cancel: %+v %v", res, err)
	}

	b, err := s.GetBookingAttemptByToken(ctx, booking.Token)
	if err != nil || b.Status != models.BookingCanceled {
		t.Fatalf("booking: %+v %v", b, err)
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	_, clock, svc, _ := setup(t)
	res, err := send(t, clock, svc, "routing_form_submission.created", map[string]any{})
	if err != nil || res.Action != scheduling.ActionIgnored {
		t.Fatalf("got %+v %v", res, err)
	}
}
