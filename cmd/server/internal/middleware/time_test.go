package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestTime(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	before := time.Now().UTC().Add(-time.Microsecond)

	var seen time.Time
	err := RequestTime("time")(func(c echo.Context) error {
		var ok bool
		seen, ok = c.Get("time").(time.Time)
		require.True(t, ok, "time should be set before the handler runs")
		return nil
	})(c)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, seen.Location())
	assert.Zero(t, seen.Nanosecond()%int(time.Microsecond), "time should be truncated to microseconds")
	assert.False(t, seen.Before(before))
	assert.False(t, seen.After(time.Now().UTC()))
}
