package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/config"
)

const analysisJSON = `{"overallScore": 6.4, "confidence": {"score": "Medium", "reason": "one camera angle"}, "technicalSkills": {"racketSkills": {"score": 6, "observations": ["Late backhand preparation [01:12]"], "successes": [], "improvements": []}}, "progressNotes": "First analysis"}`

func generateBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"role": "model", "parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, srv *httptest.Server, sleeps *[]time.Duration) *Client {
	t.Helper()
	var mu sync.Mutex
	cfg := Config{
		APIKey:       "test-key",
		BaseURL:      srv.URL + "/v1beta",
		UploadURL:    srv.URL + "/upload/v1beta",
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  200 * time.Millisecond,
		Retry: RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Sleep: func(ctx context.Context, d time.Duration) error {
				mu.Lock()
				defer mu.Unlock()
				if sleeps != nil {
					*sleeps = append(*sleeps, d)
				}
				return nil
			},
		},
	}
	c, err := NewClient(cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "})
	require.Error(t, err)
	assert.Equal(t, apperror.KindMissingCredential, apperror.KindOf(err))
}

func TestResponseTextMissingLevels(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{"nil response", nil},
		{"no candidates", &Response{}},
		{"no content", &Response{Candidates: []Candidate{{}}}},
		{"no parts", &Response{Candidates: []Candidate{{Content: &Content{}}}}},
		{"empty text", &Response{Candidates: []Candidate{{Content: &Content{Parts: []Part{{Text: " "}}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.resp.Text()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.EmptyResponse)
		})
	}
}

func TestParseResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(generateBody(analysisJSON)))
	require.NoError(t, err)

	result, err := ParseResponse(resp)
	require.NoError(t, err)
	assert.InDelta(t, 6.4, float64(result.OverallScore), 0.0001)
	assert.Equal(t, "Medium", result.Confidence.Score)
	assert.Contains(t, result.TechnicalSkills, "racketSkills")

	resp, err = DecodeResponse([]byte(generateBody("{not json")))
	require.NoError(t, err)
	_, err = ParseResponse(resp)
	assert.ErrorIs(t, err, apperror.MalformedResponse)
}

func TestParseAnalysisKeepsValidJSON(t *testing.T) {
	result, err := ParseAnalysis(`{"overallScore": 6, "confidence": "Low", "technicalSkills": {"score": 7, "racketSkills": {"score": 7, "observations": "Tight net shot [00:40]"}}, "progressNotes": ["Better base position"]}`)
	require.NoError(t, err)

	assert.InDelta(t, 6.0, float64(result.OverallScore), 0.0001)
	assert.Equal(t, "Low", result.Confidence.Score)
	require.Contains(t, result.TechnicalSkills, "racketSkills")
	assert.NotContains(t, result.TechnicalSkills, "score")
	assert.Equal(t, []string{"Tight net shot [00:40]"}, result.TechnicalSkills["racketSkills"].Observations)
	assert.Equal(t, "Better base position", result.ProgressNotes)

	_, err = ParseAnalysis(`{"overallScore": 6,`)
	assert.ErrorIs(t, err, apperror.MalformedResponse)
}

func TestStartSession(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, "/upload/v1beta/files", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rally.mp4", body["file"]["displayName"])

		w.Header().Set("X-Goog-Upload-URL", "https://upload.example/session-1")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	session, err := c.StartSession(context.Background(), &UploadFile{DisplayName: "rally.mp4", Size: 1234})
	require.NoError(t, err)

	assert.Equal(t, "https://upload.example/session-1", session.Endpoint)
	assert.Equal(t, SessionStarting, session.State)
	assert.Equal(t, "resumable", gotHeaders.Get("X-Goog-Upload-Protocol"))
	assert.Equal(t, "start", gotHeaders.Get("X-Goog-Upload-Command"))
	assert.Equal(t, "1234", gotHeaders.Get("X-Goog-Upload-Header-Content-Length"))
	assert.Equal(t, "video/mp4", gotHeaders.Get("X-Goog-Upload-Header-Content-Type"))
}

func TestStartSessionWithoutUploadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.StartSession(context.Background(), &UploadFile{DisplayName: "rally.mp4", Size: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.UploadInit)
	assert.Equal(t, "No upload URL returned from API", err.Error())
}

func TestSendBytes(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upload, finalize", r.Header.Get("X-Goog-Upload-Command"))
		assert.Equal(t, "0", r.Header.Get("X-Goog-Upload-Offset"))
		assert.Equal(t, int64(len(payload)), r.ContentLength)

		got, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, got)

		_, _ = w.Write([]byte(`{"file": {"name": "files/abc", "uri": "https://files.example/abc", "state": "PROCESSING"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	session := &UploadSession{Endpoint: srv.URL + "/session", TotalBytes: int64(len(payload))}

	var lastSent int64
	file, err := c.SendBytes(context.Background(), session, &UploadFile{
		DisplayName: "rally.mp4",
		Size:        int64(len(payload)),
		Body:        bytes.NewReader(payload),
	}, func(sent, total int64) {
		lastSent = sent
	})
	require.NoError(t, err)

	assert.Equal(t, "files/abc", file.Name)
	assert.Equal(t, "https://files.example/abc", file.URI)
	assert.Equal(t, DefaultVideoMIMEType, file.MIMEType)
	assert.Equal(t, int64(len(payload)), lastSent)
	assert.Equal(t, int64(len(payload)), session.BytesSent)
	assert.Equal(t, SessionActivating, session.State)
}

func TestSendBytesRejectsMissingFileReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"file": {"name": "files/abc"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	session := &UploadSession{Endpoint: srv.URL}
	_, err := c.SendBytes(context.Background(), session, &UploadFile{Size: 3, Body: strings.NewReader("abc")}, nil)
	assert.ErrorIs(t, err, apperror.UploadTransfer)
	assert.Equal(t, SessionFailed, session.State)
}

func statusServer(states ...string) (*httptest.Server, *int32) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&polls, 1)) - 1
		if n >= len(states) {
			n = len(states) - 1
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "files/abc", "state": states[n]})
	}))
	return srv, &polls
}

func TestAwaitActive(t *testing.T) {
	srv, polls := statusServer(FileStateProcessing, FileStateProcessing, FileStateActive)
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	require.NoError(t, c.AwaitActive(context.Background(), "files/abc"))
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
}

func TestAwaitActiveFailed(t *testing.T) {
	srv, _ := statusServer(FileStateProcessing, FileStateFailed)
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	err := c.AwaitActive(context.Background(), "files/abc")
	assert.ErrorIs(t, err, apperror.ProcessingFailed)
}

func TestAwaitActiveTimesOut(t *testing.T) {
	srv, polls := statusServer(FileStateProcessing)
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	c.cfg.PollTimeout = 30 * time.Millisecond

	err := c.AwaitActive(context.Background(), "files/abc")
	assert.ErrorIs(t, err, apperror.Timeout)
	assert.Greater(t, atomic.LoadInt32(polls), int32(1))
}

func TestAwaitActiveHonoursCancellation(t *testing.T) {
	srv, _ := statusServer(FileStateProcessing)
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	c.cfg.PollTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.AwaitActive(ctx, "files/abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadReportsStatusesInOrder(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload/v1beta/files":
			w.Header().Set("X-Goog-Upload-URL", srvURL+"/session")
		case "/session":
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = w.Write([]byte(`{"file": {"name": "files/abc", "uri": "https://files.example/abc", "mimeType": "video/webm"}}`))
		case "/v1beta/files/abc":
			_, _ = w.Write([]byte(`{"name": "files/abc", "state": "ACTIVE"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, srv, nil)
	var statuses []string
	file, err := c.Upload(context.Background(), &UploadFile{
		DisplayName: "rally.webm",
		MIMEType:    "video/webm",
		Size:        5,
		Body:        strings.NewReader("hello"),
	}, func(s string) { statuses = append(statuses, s) })
	require.NoError(t, err)

	assert.Equal(t, []string{StatusUploading, StatusProcessing}, statuses)
	assert.Equal(t, "https://files.example/abc", file.URI)
	assert.Equal(t, "video/webm", file.MIMEType)
	assert.Equal(t, FileStateActive, file.State)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, 0.7, req.GenerationConfig.Temperature)
		assert.Equal(t, 8192, req.GenerationConfig.MaxOutputTokens)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)

		_, _ = w.Write([]byte(generateBody(analysisJSON)))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	resp, err := c.Generate(context.Background(), ModelFlash20, NewRequest(
		FilePart("https://files.example/abc", ""),
		TextPart("analyse"),
	))
	require.NoError(t, err)

	text, err := resp.Text()
	require.NoError(t, err)
	assert.JSONEq(t, analysisJSON, text)
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "Resource exhausted"}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(t, srv, &sleeps)

	_, err := c.Generate(context.Background(), ModelFlash20, NewRequest(TextPart("hi")))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.RateLimited)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
}

func TestGenerateRecoversAfterRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(generateBody(analysisJSON)))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(t, srv, &sleeps)

	_, err := c.Generate(context.Background(), ModelFlash20, NewRequest(TextPart("hi")))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, sleeps)
}

func TestGenerateProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "Video is too long"}}`))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(t, srv, &sleeps)

	_, err := c.Generate(context.Background(), ModelFlash20, NewRequest(TextPart("hi")))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.Provider)
	assert.Equal(t, "Video is too long", err.Error())
	assert.Empty(t, sleeps)
}

func TestCheckKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "/v1beta/models/gemini-3-pro-preview", r.URL.Path)
		_, _ = w.Write([]byte(`{"name": "models/gemini-3-pro-preview"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ok, err := c.CheckKey(context.Background(), ModelPro3Preview)
	require.NoError(t, err)
	assert.True(t, ok)

	c.cfg.APIKey = "wrong"
	ok, err = c.CheckKey(context.Background(), ModelPro3Preview)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetryPolicyStopsOnOtherErrors(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Sleep: func(context.Context, time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}}

	attempts := 0
	err := p.Do(context.Background(), func(int) error {
		attempts++
		return apperror.New(apperror.KindProvider, "bad request")
	})
	assert.ErrorIs(t, err, apperror.Provider)
	assert.Equal(t, 1, attempts)
}

func TestDetectMIMEType(t *testing.T) {
	avi := []byte{'R', 'I', 'F', 'F', 0x00, 0x10, 0x00, 0x00, 'A', 'V', 'I', ' ', 'L', 'I', 'S', 'T'}
	assert.Equal(t, "video/x-msvideo", DetectMIMEType(avi))
	assert.Equal(t, DefaultVideoMIMEType, DetectMIMEType([]byte("plain text")))
}

func TestLookupModel(t *testing.T) {
	m, ok := LookupModel(ModelPro3Preview)
	assert.True(t, ok)
	assert.Equal(t, "Gemini 3 Pro (Preview)", m.Name)

	_, ok = LookupModel("gpt-4")
	assert.False(t, ok)
	assert.Equal(t, DefaultModel, ResolveModel(""))
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.GeminiConfig{
		APIKey:       "key",
		BaseURL:      "http://localhost:9000/v1beta",
		PollInterval: time.Second,
	}, 0)

	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "http://localhost:9000/v1beta", cfg.BaseURL)
	assert.Equal(t, DefaultUploadURL, cfg.UploadURL)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 0, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
}
