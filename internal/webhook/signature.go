// Package webhook verifies timestamped HMAC signatures on inbound
// notifications. The header format is "t=<unix seconds>,v1=<hex digest>",
// where the digest is HMAC-SHA256(secret, "<t>.<raw body>"). Several v1
// entries may be present during secret rotation; any match is accepted.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garnizeh/bidflow/internal/apperr"
)

// Sign returns the hex digest for body signed at ts.
func Sign(secret []byte, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header builds a complete signature header value.
func Header(secret []byte, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign(secret, ts, body))
}

// Verify checks header against body. Timestamps further than tolerance from
// now in either direction are rejected. All failures wrap
// apperr.ErrSignature.
func Verify(secret []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if len(secret) == 0 {
		return apperr.New(apperr.ErrSignature, "webhook secret is not configured")
	}
	if header == "" {
		return apperr.New(apperr.ErrSignature, "signature header is missing")
	}

	var (
		ts   int64
		sigs [][]byte
		err  error
	)
	for part := range strings.SplitSeq(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return apperr.New(apperr.ErrSignature, "invalid signature timestamp")
			}
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return apperr.New(apperr.ErrSignature, "malformed signature header")
	}

	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if tolerance > 0 && age > tolerance {
		return apperr.New(apperr.ErrSignature, "signature timestamp outside tolerance window")
	}

	expected, _ := hex.DecodeString(Sign(secret, ts, body))
	for _, sig := range sigs {
		if subtle.ConstantTimeCompare(expected, sig) == 1 {
			return nil
		}
	}
	return apperr.New(apperr.ErrSignature, "signature mismatch")
}
