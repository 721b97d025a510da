package hash

import (
	"context"
	"os"
	"reflect"

	"github.com/alexedwards/argon2id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/hirelens/assessment-api/internal/logger"
)

var tracer = otel.Tracer("github.com/hirelens/assessment-api/internal/hash")

// Used when doing a fake compare for a nonexistent account
var defaultHashForError string

// Generate a hash
func init() {
	var err error

	defaultHashForError, err = argon2id.CreateHash(
		"bnZSraUCS+nZh3MI8F3iiXbKFBcAyJhvAB6u/GBJzhC00ZPAQlyYVpQ+aryw7QvE2ZI=",
		argon2id.DefaultParams,
	)
	if err != nil {
		logger.Logger.Error("error creating default hash", "error", err)
		os.Exit(1)
	}
}

func Password(ctx context.Context, password string) (string, error) {
	_, span := tracer.Start(ctx, "Password")
	defer span.End()

	encoded, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash password")
		return "", err
	}

	span.SetStatus(codes.Ok, "hashed password")
	return encoded, nil
}

// CheckPassword compares a password with its stored hash. When the hash was produced
// with outdated parameters and the password matches, rehashed holds a replacement.
func CheckPassword(
	ctx context.Context,
	password string,
	encoded string,
) (match bool, rehashed string, err error) {
	_, span := tracer.Start(ctx, "CheckPassword")
	defer span.End()

	match, oldParams, err := argon2id.CheckHash(password, encoded)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check password")
		return false, "", err
	}

	if match && !reflect.DeepEqual(oldParams, argon2id.DefaultParams) {
		span.AddEvent("rehashing with the current params")
		rehashed, err = argon2id.CreateHash(password, argon2id.DefaultParams)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to create new hash for password")
			return false, "", err
		}
	}

	span.SetStatus(codes.Ok, "checked password")
	return match, rehashed, nil
}

// FakePasswordCheck spends the same time as a real check. Used when the account does not exist.
func FakePasswordCheck(ctx context.Context) {
	_, span := tracer.Start(ctx, "FakePasswordCheck")
	defer span.End()

	_, err := argon2id.ComparePasswordAndHash("i am a very real password", defaultHashForError)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compare fake password with default hash for error")
		return
	}

	span.AddEvent("compared fake password and default hash for error")
}
