package aigateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pliu/simquery/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	opts.BaseURL = srv.URL
	opts.InitialBackoff = time.Millisecond
	return New(srv.Client(), opts), &calls
}

func TestScoreString(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/get-similarity", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req scoreRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Prompt)

		w.Write([]byte(`{"similarity_score":"0.42"}`))
	}, Options{})

	score, err := client.Score(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "0.42", score)
}

func TestScoreNumber(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"similarity_score": 0.875}`))
	}, Options{})

	score, err := client.Score(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "0.875", score)
}

func TestScoreServerErrorRetried(t *testing.T) {
	var n atomic.Int32
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"similarity_score":"0.1"}`))
	}, Options{MaxRetries: 1})

	score, err := client.Score(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "0.1", score)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScoreServerErrorExhaustsRetries(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, Options{MaxRetries: 2})

	_, err := client.Score(context.Background(), "hello")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestScoreClientErrorNotRetried(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}, Options{MaxRetries: 3})

	_, err := client.Score(context.Background(), "hello")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScoreMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"missing field", `{"score":"0.42"}`},
		{"null field", `{"similarity_score":null}`},
		{"empty string", `{"similarity_score":""}`},
		{"wrong type", `{"similarity_score":{"value":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, Options{MaxRetries: 2})

			_, err := client.Score(context.Background(), "hello")
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestScoreOversizedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"similarity_score":"` + strings.Repeat("9", maxResponseBytes) + `"}`))
	}, Options{})

	_, err := client.Score(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestScoreLongerThanMessageLimit(t *testing.T) {
	long := strings.Repeat("9", models.MaxMessageLength+1)
	tests := []struct {
		name string
		body string
	}{
		{"string", `{"similarity_score":"` + long + `"}`},
		{"number", `{"similarity_score":` + long + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}, Options{MaxRetries: 2})

			_, err := client.Score(context.Background(), "hello")
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestScoreAtMessageLimit(t *testing.T) {
	limit := strings.Repeat("9", models.MaxMessageLength)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"similarity_score":"` + limit + `"}`))
	}, Options{})

	score, err := client.Score(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, limit, score)
}

func TestScoreTimeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Score(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestScoreTotalTimeoutBoundsRetries(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Options{Timeout: 100 * time.Millisecond, MaxRetries: 5, TotalTimeout: 150 * time.Millisecond})

	start := time.Now()
	_, err := client.Score(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestTotalTimeoutDefault(t *testing.T) {
	client := New(nil, Options{Timeout: time.Second, MaxRetries: 2})
	assert.Equal(t, 3*time.Second, client.opts.TotalTimeout)
}

func TestScoreNotConfigured(t *testing.T) {
	client := New(nil, Options{})
	_, err := client.Score(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
