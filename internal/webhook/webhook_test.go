package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smashers-ai/smashers/pkg/models"
)

func newTestService(secret string, attempts int, sleeps *[]time.Duration) *Service {
	s := NewService(Config{Secret: secret, Timeout: time.Second, MaxAttempts: attempts}, nil)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return s
}

func TestSendSignsPayload(t *testing.T) {
	var body []byte
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var sleeps []time.Duration
	s := newTestService("test-secret", 3, &sleeps)

	status := &models.JobStatus{JobID: "job-1", Status: models.JobStatusCompleted, HistoryID: "h-1"}
	require.NoError(t, s.NotifyCompleted(context.Background(), server.URL, status))

	assert.Empty(t, sleeps)
	assert.Equal(t, models.WebhookEventAnalysisCompleted, headers.Get(HeaderEvent))
	assert.NotEmpty(t, headers.Get(HeaderDelivery))
	assert.True(t, Verify(body, "test-secret", headers.Get(HeaderSignature)))
	assert.False(t, Verify(body, "other-secret", headers.Get(HeaderSignature)))

	var event struct {
		Event string           `json:"event"`
		Data  models.JobStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &event))
	assert.Equal(t, "job-1", event.Data.JobID)
	assert.Equal(t, "h-1", event.Data.HistoryID)
}

func TestSendWithoutSecret(t *testing.T) {
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(HeaderSignature)
	}))
	defer server.Close()

	var sleeps []time.Duration
	s := newTestService("", 1, &sleeps)
	require.NoError(t, s.NotifyFailed(context.Background(), server.URL, &models.JobStatus{JobID: "job-1"}))
	assert.Empty(t, signature)
}

func TestSendRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var sleeps []time.Duration
	s := newTestService("k", 3, &sleeps)
	require.NoError(t, s.Send(context.Background(), server.URL, "analysis.completed", nil))

	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, sleeps)
}

func TestSendGivesUp(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var sleeps []time.Duration
	s := newTestService("k", 2, &sleeps)
	err := s.Send(context.Background(), server.URL, "analysis.failed", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDelayCaps(t *testing.T) {
	assert.Equal(t, time.Second, delay(1))
	assert.Equal(t, time.Minute, delay(4))
	assert.Equal(t, time.Minute, delay(9))
}
