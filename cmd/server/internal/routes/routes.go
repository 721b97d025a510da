package routes

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	servermiddleware "github.com/hirelens/assessment-api/cmd/server/internal/middleware"
	"github.com/hirelens/assessment-api/internal/validator"
)

func BuildEcho(logger *slog.Logger) (*echo.Echo, error) {
	e := echo.New()

	validate := validator.Create()
	e.Validator = &validate

	e.Pre(middleware.AddTrailingSlash())

	e.Use(
		otelecho.Middleware("assessment-api"),
		slogecho.NewWithConfig(logger, slogecho.Config{}),
		middleware.Recover(),
		// job descriptions are the largest payload and are capped well below this
		middleware.BodyLimit("1M"),
		servermiddleware.RequestTime("time"),
	)

	e.GET("/health/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	return e, nil
}
