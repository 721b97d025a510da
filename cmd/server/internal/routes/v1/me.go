package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/internal/types"
)

// Lets a client check that its session token is still accepted
func (h *Handler) Me(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "Me")
	defer span.End()

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	span.AddEvent("received session check")

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.MeResponse{
		ID:          user.ID,
		Email:       user.Email,
		LastLoginAt: models.PtrFromNull(user.LastLoginAt),
	})
}
