// Package invite issues candidate invite tokens and decides whether one may be redeemed.
package invite

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hirelens/assessment-api/internal/types"
)

// TokenBytes is the amount of randomness in a token
const TokenBytes = 16

const DefaultExpiryHours = 168

var (
	ErrInvalid       = types.NewDomainError(types.KindNotFound, "Invalid invite")
	ErrExpired       = types.NewDomainError(types.KindGone, "Invite expired")
	ErrAlreadyUsed   = types.NewDomainError(types.KindGone, "Invite already used")
	ErrNotActive     = types.NewDomainError(types.KindForbidden, "Assessment not active")
	ErrWindowNotOpen = types.NewDomainError(types.KindForbidden, "Assessment not yet available")
	ErrWindowClosed  = types.NewDomainError(types.KindForbidden, "Assessment window closed")
)

// State is everything needed to decide on a redemption
type State struct {
	UsedAt           *time.Time
	ActiveFrom       *time.Time
	ActiveUntil      *time.Time
	ExpiresAt        time.Time
	AssessmentStatus types.AssessmentStatus
	SingleUse        bool
}

// NewToken returns a hex encoded token carrying [TokenBytes] of randomness.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func ExpiresAt(now time.Time, hours int) time.Time {
	if hours <= 0 {
		hours = DefaultExpiryHours
	}
	return now.Add(time.Duration(hours) * time.Hour)
}

func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/test/invite?token=" + url.QueryEscape(token)
}

// Check runs the redemption checks in order. A nil state means the token is unknown.
func Check(s *State, now time.Time) error {
	if s == nil {
		return ErrInvalid
	}

	if !now.Before(s.ExpiresAt) {
		return ErrExpired
	}

	if s.SingleUse && s.UsedAt != nil {
		return ErrAlreadyUsed
	}

	if s.AssessmentStatus != types.AssessmentStatusActive {
		return ErrNotActive
	}

	if s.ActiveFrom != nil && now.Before(*s.ActiveFrom) {
		return ErrWindowNotOpen
	}

	if s.ActiveUntil != nil && now.After(*s.ActiveUntil) {
		return ErrWindowClosed
	}

	return nil
}
