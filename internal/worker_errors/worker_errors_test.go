package workererrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	workererrors "github.com/hirelens/assessment-api/internal/worker_errors"
)

func TestExitErrorWrap(t *testing.T) {
	inner := errors.New("queue unreachable")
	err := workererrors.ExitErrorWrap(2, inner)

	var ee workererrors.ExitError
	if assert.ErrorAs(t, err, &ee) {
		assert.Equal(t, 2, ee.Code)
	}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "exit 2: queue unreachable", err.Error())
	assert.Equal(t, "exit 1", workererrors.ExitError{Code: 1}.Error())
}
