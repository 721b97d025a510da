package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
)

// Context key the authenticated HR user is stored under
const UserKey = "user"

// Requires a valid bearer session token and loads its user into the context
func (h *Handler) HRAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "HRAuth")
		defer span.End()

		db := h.DB.WithContext(ctx)

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			span.AddEvent("missing bearer token")
			span.SetStatus(codes.Ok, "unauthenticated")
			return response.UnauthorizedError
		}

		span.AddEvent("verifying session token")
		userID, err := ParseSessionToken(h.JWTSecret, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Ok, "invalid session token")
			return response.UnauthorizedError
		}

		span.SetAttributes(attribute.String("user.id", userID.String()))

		span.AddEvent("getting user by id")
		user, err := models.ByID[models.User](ctx, db, userID)
		if err != nil {
			span.RecordError(err)

			if errors.Is(err, gorm.ErrRecordNotFound) {
				span.SetStatus(codes.Ok, "session for a deleted user")
				return response.UnauthorizedError
			}

			span.SetStatus(codes.Error, "failed to fetch user")
			return response.InternalServerError
		}

		c.Set(UserKey, user)

		span.SetStatus(codes.Ok, "authenticated")
		return next(c)
	}
}
