package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedKeyExtractor struct{ key string }

func (f fixedKeyExtractor) Apply(*http.Request) string { return f.key }

func TestMiddlewareAllowsUnderCostThenBlocks(t *testing.T) {
	cfg := &DefaultConfig{MaxTokens: 1, RefillRate: 0, OpCost: 1}
	mw := New(TokenBucketFactory{}, fixedKeyExtractor{key: "client-a"}, cfg)

	calls := 0
	handler := mw.Wrap(func(w http.ResponseWriter, r *http.Request) { calls++ })

	req := httptest.NewRequest(http.MethodGet, "/sgd/v1/train/sync", nil)

	w1 := httptest.NewRecorder()
	handler(w1, req)
	assert.Equal(t, http.StatusOK, w1.Code)
	require.Equal(t, 1, calls)

	w2 := httptest.NewRecorder()
	handler(w2, req)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, 1, calls, "second call within the same bucket must be rejected")
}

func TestMiddlewareTracksKeysIndependently(t *testing.T) {
	cfg := &DefaultConfig{MaxTokens: 1, RefillRate: 0, OpCost: 1}
	mw := New(TokenBucketFactory{}, RemoteIPKeyExtractor{}, cfg)

	calls := 0
	handler := mw.Wrap(func(w http.ResponseWriter, r *http.Request) { calls++ })

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.RemoteAddr = "10.0.0.1:1234"
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.RemoteAddr = "10.0.0.2:1234"

	w1 := httptest.NewRecorder()
	handler(w1, reqA)
	w2 := httptest.NewRecorder()
	handler(w2, reqB)

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code, "a different client key gets its own bucket")
	assert.Equal(t, 2, calls)
}
