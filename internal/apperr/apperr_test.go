package apperr

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
		{Validation("missing to"), http.StatusBadRequest},
		{NotFound("tenant"), http.StatusNotFound},
		{Authentication("bad signature"), http.StatusUnauthorized},
		{Upstream(errors.New("boom")), http.StatusBadGateway},
		{Persistence(errors.New("db down")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := NotFound("conversation")
	wrapped := fmt.Errorf("loading inbox: %w", base)

	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindValidation))
	assert.Equal(t, "conversation not found", PublicMessage(wrapped))
}

func TestUpstreamUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := Upstream(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "platform send failed: timeout", err.Error())
	assert.Equal(t, "internal error", PublicMessage(cause))
}
