package validator

import (
	"encoding/hex"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/hirelens/assessment-api/internal/invite"
	"github.com/hirelens/assessment-api/internal/types"
)

// anything shaped like local@domain.tld
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var customTags = map[string]validator.Func{
	"invite_token":   validateInviteToken,
	"recommendation": validateRecommendation,
	"job_status":     validateJobStatus,
	"loose_email":    validateLooseEmail,
}

// hex encoded token of exactly invite.TokenBytes
func validateInviteToken(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != hex.EncodedLen(invite.TokenBytes) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func validateRecommendation(fl validator.FieldLevel) bool {
	return types.Recommendation(fl.Field().String()).Valid()
}

func validateJobStatus(fl validator.FieldLevel) bool {
	return types.JobStatus(fl.Field().String()).Valid()
}

func validateLooseEmail(fl validator.FieldLevel) bool {
	return emailPattern.MatchString(fl.Field().String())
}
