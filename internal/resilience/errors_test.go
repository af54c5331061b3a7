package resilience

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable status", MarkStatus(KindCRM, errors.New("overloaded"), 503), true},
		{"wrapped status", fmt.Errorf("zoho: get org: %w", MarkStatus(KindCRM, errors.New("429"), 429)), true},
		{"eris wrapped status", eris.Wrap(MarkStatus(KindVector, errors.New("bad gateway"), 502), "pinecone: query"), true},
		{"permanent status", MarkStatus(KindCRM, errors.New("bad request"), 400), false},
		{"crm unauthorized", MarkStatus(KindCRM, errors.New("invalid token"), 401), false},
		{"vector conflict", MarkStatus(KindVector, errors.New("exists"), 409), false},
		{"chat overloaded", MarkStatus(KindChat, errors.New("overloaded"), 529), true},
		{"crm 529", MarkStatus(KindCRM, errors.New("odd"), 529), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"circuit open", fmt.Errorf("crm: %w", ErrCircuitOpen), false},
		{"plain", errors.New("invalid field name"), false},
		{"timeout text alone", errors.New("read: i/o timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	kinds := []Kind{KindCRM, KindVector, KindEmbedding, KindChat}
	for _, kind := range kinds {
		for _, code := range []int{408, 429, 500, 502, 503, 504} {
			assert.True(t, RetryableStatus(kind, code), "%s %d", kind, code)
		}
		for _, code := range []int{200, 400, 401, 403, 404, 409, 422} {
			assert.False(t, RetryableStatus(kind, code), "%s %d", kind, code)
		}
	}
	assert.True(t, RetryableStatus(KindChat, 529))
	assert.False(t, RetryableStatus(KindEmbedding, 529))
}

func TestMarkStatus(t *testing.T) {
	base := errors.New("upstream failed")

	err := MarkStatus(KindVector, base, http.StatusNotFound)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "upstream failed", err.Error())
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	var se *StatusError
	if assert.ErrorAs(t, err, &se) {
		assert.Equal(t, KindVector, se.Kind)
		assert.False(t, se.Retryable())
	}

	assert.NoError(t, MarkStatus(KindCRM, nil, 500))
	assert.Equal(t, 0, StatusOf(base))
}

func TestAlreadyExists(t *testing.T) {
	conflict := eris.Wrap(MarkStatus(KindVector, errors.New("index exists"), http.StatusConflict), "pinecone: create index")
	assert.True(t, AlreadyExists(conflict))

	assert.False(t, AlreadyExists(MarkStatus(KindCRM, errors.New("duplicate"), http.StatusConflict)))
	assert.False(t, AlreadyExists(MarkStatus(KindVector, errors.New("gone"), http.StatusNotFound)))
	assert.False(t, AlreadyExists(nil))
}

func TestUnauthorized(t *testing.T) {
	assert.True(t, Unauthorized(fmt.Errorf("zoho: get lead: %w", MarkStatus(KindCRM, errors.New("INVALID_TOKEN"), 401))))
	assert.False(t, Unauthorized(MarkStatus(KindChat, errors.New("bad key"), 401)))
	assert.False(t, Unauthorized(MarkStatus(KindCRM, errors.New("forbidden"), 403)))
}
