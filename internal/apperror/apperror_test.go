package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Forbidden("not a party"), http.StatusForbidden},
		{Conflict("slot taken"), http.StatusConflict},
		{StateTransition("PENDING -> COMPLETED"), http.StatusConflict},
		{External(errors.New("timeout"), "gateway"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("create booking: %w", Conflict("slot taken"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, Is(err, KindConflict))
	assert.False(t, Is(nil, KindConflict))
}

func TestPublicMessage_HidesInternal(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(Internal(errors.New("pq: relation missing"), "load booking")))
	assert.Equal(t, "slot taken", PublicMessage(Conflict("slot taken")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("card declined")
	err := External(cause, "create intent")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "create intent: card declined", err.Error())
}
