package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/garnizeh/bidflow/internal/apperr"
)

func TestDefaultRegistry(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name    string
		schema  string
		body    string
		wantErr bool
	}{
		{"PaymentOK", PaymentEvent, `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`, false},
		{"PaymentMissingData", PaymentEvent, `{"id":"evt_1","type":"checkout.session.completed"}`, true},
		{"PaymentWrongType", PaymentEvent, `{"id":"evt_1","type":5,"data":{"object":{}}}`, true},
		{"NotJSON", PaymentEvent, `not json`, true},
		{"SchedulingOK", SchedulingEvent, `{"event":"invitee.created","payload":{"event":{"uri":"u"}}}`, false},
		{"SchedulingNoPayload", SchedulingEvent, `{"event":"invitee.created"}`, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := reg.Validate(ctx, c.schema, []byte(c.body))
			if c.wantErr && !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	if err := reg.Validate(ctx, "nope", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown schema error")
	}
}
