package webhook

import (
	"errors"
	"testing"
	"time"

	"github.com/garnizeh/bidflow/internal/apperr"
)

func TestVerify(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"type":"checkout.session.completed"}`)
	now := time.Unix(1_760_000_000, 0)
	valid := Header(secret, now.Unix(), body)

	cases := []struct {
		name    string
		secret  []byte
		header  string
		body    []byte
		now     time.Time
		wantErr bool
	}{
		{"Valid", secret, valid, body, now, false},
		{"WithinWindow", secret, valid, body, now.Add(179 * time.Second), false},
		{"Stale", secret, valid, body, now.Add(181 * time.Second), true},
		{"FromFuture", secret, valid, body, now.Add(-181 * time.Second), true},
		{"TamperedBody", secret, valid, []byte(`{"type":"other"}`), now, true},
		{"WrongSecret", []byte("other"), valid, body, now, true},
		{"MissingHeader", secret, "", body, now, true},
		{"NoDigest", secret, "t=1760000000", body, now, true},
		{"BadTimestamp", secret, "t=abc,v1=00", body, now, true},
		{"RotatedSecret", secret, valid + ",v1=deadbeef", body, now, false},
		{"EmptySecret", nil, valid, body, now, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Verify(c.secret, c.header, c.body, c.now, 180*time.Second)
			if c.wantErr {
				if !errors.Is(err, apperr.ErrSignature) {
					t.Fatalf("expected ErrSignature, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
