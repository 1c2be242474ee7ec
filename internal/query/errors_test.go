package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", TransportError(errors.New("reset")), true},
		{"timeout", TimeoutError(nil), true},
		{"server", StatusError(502), true},
		{"unclassified", errors.New("boom"), true},
		{"wrapped server", fmt.Errorf("load stats: %w", StatusError(500)), true},
		{"client", StatusError(404), false},
		{"application", ApplicationError("project not found"), false},
		{"decode", DecodeError(errors.New("bad")), false},
		{"circuit open", errCircuitOpen, false},
		{"permanent", backoff.Permanent(errors.New("stop")), false},
		{"canceled", context.Canceled, false},
		{"closed", ErrClientClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "request timeout", Message(TimeoutError(context.DeadlineExceeded)))
	assert.Equal(t, "HTTP 404: Not Found", Message(StatusError(404)))
	assert.Equal(t, "HTTP 500: Internal Server Error", Message(StatusError(500)))
	assert.Equal(t, "name is required", Message(ApplicationError("name is required")))
	assert.Equal(t, "stop", Message(backoff.Permanent(errors.New("stop"))))
	assert.Equal(t, DefaultMessage, Message(errors.New("")))
	assert.Equal(t, "transport error", Message(&Error{Kind: KindTransport}))
}

func TestStatusErrorKinds(t *testing.T) {
	assert.Equal(t, KindServer, StatusError(503).Kind)
	assert.Equal(t, KindClient, StatusError(422).Kind)
	assert.Equal(t, 422, StatusError(422).Status)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("fetch: %w", TransportError(cause))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(cause))
}
