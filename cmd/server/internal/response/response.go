package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirelens/assessment-api/internal/types"
)

var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("something went wrong"),
	)
	NotFoundError     = echo.NewHTTPError(http.StatusNotFound, types.StringError("not found"))
	UnauthorizedError = echo.NewHTTPError(http.StatusUnauthorized, types.StringError("Unauthorized"))
	UpstreamError     = echo.NewHTTPError(
		http.StatusBadGateway,
		types.StringError("upstream model failure"),
	)
)

var statusForKind = map[types.ErrorKind]int{
	types.KindValidation: http.StatusUnprocessableEntity,
	types.KindConflict:   http.StatusConflict,
	types.KindNotFound:   http.StatusNotFound,
	types.KindGone:       http.StatusGone,
	types.KindForbidden:  http.StatusForbidden,
}

// Maps a domain error onto an HTTP error carrying its message. Errors without a kind
// become [InternalServerError].
func DomainError(err error) *echo.HTTPError {
	kind, ok := types.KindOf(err)
	if !ok {
		return InternalServerError
	}

	status, ok := statusForKind[kind]
	if !ok {
		return InternalServerError
	}

	if kind == types.KindNotFound {
		var de *types.DomainError
		if errors.As(err, &de) && de.Message != "" {
			return echo.NewHTTPError(status, types.StringError(de.Message))
		}
		return NotFoundError
	}

	return echo.NewHTTPError(status, types.StringError(err.Error()))
}
