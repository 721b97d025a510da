package v1

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	servermiddleware "github.com/hirelens/assessment-api/cmd/server/internal/middleware"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/hash"
	"github.com/hirelens/assessment-api/internal/invite"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/types"
)

const magicLinkSentMessage = "If an account exists for that email, a sign-in link has been sent."

var invalidCredentialsError = echo.NewHTTPError(
	http.StatusUnauthorized,
	types.StringError("Invalid email or password"),
)

func (h *Handler) issueSession(
	c echo.Context,
	span trace.Span,
	status int,
	userID uuid.UUID,
	now time.Time,
) error {
	token, err := servermiddleware.NewSessionToken(
		[]byte(h.config.Auth.JWTSecret),
		userID,
		now,
		h.sessionTTL(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sign session token")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(status, types.SessionResponse{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(h.sessionTTL()),
	})
}

func (h *Handler) Register(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Register")
	defer span.End()

	db := h.DB.WithContext(ctx)

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.Credentials
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	span.AddEvent("hashing password")
	encoded, err := hash.Password(ctx, rdata.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash password")
		return response.InternalServerError
	}

	user := &models.User{Email: models.NormalizeEmail(rdata.Email), PasswordHash: encoded}

	span.AddEvent("inserting into database")
	err = db.Create(user).Error
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			span.SetStatus(codes.Ok, "email already registered")
			return echo.NewHTTPError(
				http.StatusConflict,
				types.StringError("Email already registered"),
			)
		}
		span.SetStatus(codes.Error, "failed to insert user")
		return response.InternalServerError
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	h.recorder.Record(ctx, &user.ID, audit.ActUserRegistered, map[string]any{
		"user_id": user.ID.String(),
	})

	return h.issueSession(c, span, http.StatusCreated, user.ID, now)
}

func (h *Handler) Login(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Login")
	defer span.End()

	db := h.DB.WithContext(ctx)

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.Credentials
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	span.AddEvent("getting user by email")
	user, err := models.UserByEmail(ctx, db, rdata.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch user")
		return response.InternalServerError
	}

	if user == nil {
		hash.FakePasswordCheck(ctx)
		span.SetStatus(codes.Ok, "no such user")
		return invalidCredentialsError
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	span.AddEvent("checking password")
	match, rehashed, err := hash.CheckPassword(ctx, rdata.Password, user.PasswordHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check password")
		return response.InternalServerError
	}
	if !match {
		span.SetStatus(codes.Ok, "wrong password")
		return invalidCredentialsError
	}

	updates := map[string]any{"last_login_at": now}
	if rehashed != "" {
		span.AddEvent("storing rehashed password")
		updates["password_hash"] = rehashed
	}
	err = db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record login")
		return response.InternalServerError
	}

	h.recorder.Record(ctx, &user.ID, audit.ActUserLogin, map[string]any{
		"method": "password",
	})

	return h.issueSession(c, span, http.StatusOK, user.ID, now)
}

// Always answers with the same body so callers cannot probe for accounts
func (h *Handler) RequestMagicLink(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RequestMagicLink")
	defer span.End()

	db := h.DB.WithContext(ctx)

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.MagicLinkRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	span.AddEvent("getting user by email")
	user, err := models.UserByEmail(ctx, db, rdata.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch user")
		return response.InternalServerError
	}

	if user != nil {
		raw, err := invite.NewToken()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to generate token")
			return response.InternalServerError
		}

		link := &models.MagicLinkToken{
			Email:     user.Email,
			Token:     hash.Token(raw),
			ExpiresAt: now.Add(h.config.Auth.MagicLinkTTL),
		}
		err = db.Create(link).Error
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to store magic link")
			return response.InternalServerError
		}

		// delivery is out of band, the link is only logged
		logger.Logger.InfoContext(
			ctx,
			"magic link issued",
			"user_id", user.ID,
			"url", strings.TrimRight(h.config.PublicBaseURL, "/")+"/auth/magic?token="+raw,
			"expires_at", link.ExpiresAt,
		)

		h.recorder.Record(ctx, &user.ID, audit.ActMagicLinkRequested, map[string]any{
			"expires_at": link.ExpiresAt,
		})
	} else {
		span.AddEvent("no such user")
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.MessageResponse{Message: magicLinkSentMessage})
}

func (h *Handler) VerifyMagicLink(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "VerifyMagicLink")
	defer span.End()

	db := h.DB.WithContext(ctx)

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.MagicLinkVerifyRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	span.AddEvent("redeeming token")
	link, err := models.RedeemMagicLink(ctx, db, hash.Token(rdata.Token), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to redeem magic link")
		return response.InternalServerError
	}
	if link == nil {
		span.SetStatus(codes.Ok, "magic link not redeemable")
		return echo.NewHTTPError(
			http.StatusUnauthorized,
			types.StringError("Invalid or expired link"),
		)
	}

	user, err := models.UserByEmail(ctx, db, link.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch user")
		return response.InternalServerError
	}
	if user == nil {
		span.SetStatus(codes.Ok, "user deleted since link was issued")
		return response.UnauthorizedError
	}

	err = db.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login_at", now).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record login")
		return response.InternalServerError
	}

	h.recorder.Record(ctx, &user.ID, audit.ActMagicLinkRedeemed, map[string]any{
		"magic_link_id": link.ID.String(),
	})

	return h.issueSession(c, span, http.StatusOK, user.ID, now)
}
