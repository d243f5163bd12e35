package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/internal/history"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/internal/middleware"
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/pkg/models"
)

const testSecret = "test-secret"

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*models.AnalysisJob
	err  error
}

func (q *fakeQueue) PublishJob(ctx context.Context, job *models.AnalysisJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeSources struct {
	keys            []string
	deleted         []string
	clearedPrefixes []string
	bytes           map[string][]byte
}

func (s *fakeSources) Upload(ctx context.Context, key string, r io.Reader, size int64, mimeType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.bytes == nil {
		s.bytes = map[string][]byte{}
	}
	s.keys = append(s.keys, key)
	s.bytes[key] = data
	return nil
}

func (s *fakeSources) DeleteAll(ctx context.Context, prefix string) error {
	s.clearedPrefixes = append(s.clearedPrefixes, prefix)
	return nil
}

func (s *fakeSources) Delete(ctx context.Context, key string) error {
	delete(s.bytes, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type memoryStatuses struct {
	mu       sync.Mutex
	statuses map[string]*models.JobStatus
}

func (m *memoryStatuses) SetJobStatus(ctx context.Context, status *models.JobStatus, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = map[string]*models.JobStatus{}
	}
	m.statuses[status.JobID] = status
	return nil
}

func (m *memoryStatuses) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[jobID], nil
}

type staticDurations map[string]float64

func (d staticDurations) Duration(ctx context.Context, id string) (float64, error) {
	if v, ok := d[id]; ok {
		return v, nil
	}
	return 0, apperror.New(apperror.KindNotFound, "Video not found")
}

// MockProfiles is a mock implementation of Profiles
type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) Get(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfiles) Update(ctx context.Context, userID string, update models.ProfileUpdate) (*models.Profile, error) {
	args := m.Called(ctx, userID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *MockProfiles) Reset(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

type testEnv struct {
	router   *gin.Engine
	api      *API
	queue    *fakeQueue
	sources  *fakeSources
	statuses *memoryStatuses
	profiles *MockProfiles
	stores   map[string]*history.FileStore
	verifier *middleware.JWTVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	env := &testEnv{
		queue:    &fakeQueue{},
		sources:  &fakeSources{},
		statuses: &memoryStatuses{},
		profiles: &MockProfiles{},
		stores:   map[string]*history.FileStore{},
		verifier: middleware.NewJWTVerifier(testSecret, "authenticated"),
	}

	env.api = &API{
		histories: func(userID string) history.Store {
			if s, ok := env.stores[userID]; ok {
				return s
			}
			s := history.NewFileStore(filepath.Join(dir, userID+".json"), nil)
			env.stores[userID] = s
			return s
		},
		profiles:      env.profiles,
		queue:         env.queue,
		sources:       env.sources,
		statuses:      env.statuses,
		youtube:       staticDurations{"dQw4w9WgXcQ": 212},
		pricing:       timeutil.DefaultPricing(),
		statusTTL:     time.Hour,
		maxUploadSize: 10 << 20,
		logger:        logging.Nop(),
	}

	env.router = setupRouter(env.api, RouterConfig{
		Verifier: env.verifier,
		Logger:   logging.Nop(),
	})
	return env
}

func (env *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := env.verifier.GenerateToken(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(t *testing.T, req *http.Request, userID string) *httptest.ResponseRecorder {
	t.Helper()
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+env.token(t, userID))
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("video", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

var mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom fake video payload")

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	env.api.health = func(context.Context) error { return errors.New("db down") }
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["status"])
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authorization header required", decode(t, w)["error"])
}

func TestCreateAnalysisYouTube(t *testing.T) {
	env := newTestEnv(t)

	req := formRequest(t, map[string]string{
		"youtube_url":        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"player_description": "Player in red, near court",
		"start_time":         "0:30",
		"end_time":           "2:00",
	}, "", nil)
	w := env.do(t, req, "user-1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, models.JobStatusQueued, body["status"])

	require.Len(t, env.queue.jobs, 1)
	job := env.queue.jobs[0]
	assert.Equal(t, body["job_id"], job.ID)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, models.SourceTypeYouTube, job.SourceType)
	assert.Equal(t, "dQw4w9WgXcQ", job.YouTubeID)
	assert.Equal(t, 30.0, job.TimeRange.Start)
	require.NotNil(t, job.TimeRange.End)
	assert.Equal(t, 120.0, *job.TimeRange.End)
	assert.Equal(t, 212.0, job.Duration)
	assert.Equal(t, "gemini-2.0-flash", job.Model)

	status, _ := env.statuses.GetJobStatus(context.Background(), job.ID)
	require.NotNil(t, status)
	assert.Equal(t, models.JobStatusQueued, status.Status)
}

func TestCreateAnalysisFile(t *testing.T) {
	env := newTestEnv(t)

	req := formRequest(t, map[string]string{
		"player_description": "Player in white",
		"player_name":        "Lee",
		"duration":           "600",
	}, "rally.mp4", mp4Header)
	w := env.do(t, req, "user-1")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Len(t, env.queue.jobs, 1)
	job := env.queue.jobs[0]
	assert.Equal(t, models.SourceTypeFile, job.SourceType)
	assert.Equal(t, "video/mp4", job.MIMEType)
	assert.Equal(t, "Lee", job.PlayerName)
	assert.Equal(t, "sources/user-1/"+job.ID+".mp4", job.ObjectKey)
	assert.Nil(t, job.TimeRange.End)

	assert.Equal(t, []string{job.ObjectKey}, env.sources.keys)
	assert.Equal(t, mp4Header, env.sources.bytes[job.ObjectKey])
}

func TestCreateAnalysisValidation(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		fileName string
		content  []byte
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing description",
			fields:   map[string]string{"youtube_url": "https://youtu.be/dQw4w9WgXcQ"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Please describe the player to analyse.",
		},
		{
			name:     "no source",
			fields:   map[string]string{"player_description": "red"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Provide a video file or a YouTube link",
		},
		{
			name:     "bad link",
			fields:   map[string]string{"player_description": "red", "youtube_url": "https://vimeo.com/123"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown model",
			fields:   map[string]string{"player_description": "red", "youtube_url": "https://youtu.be/dQw4w9WgXcQ", "model": "gpt-4"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Unknown model: gpt-4",
		},
		{
			name:     "end before start",
			fields:   map[string]string{"player_description": "red", "youtube_url": "https://youtu.be/dQw4w9WgXcQ", "start_time": "2:00", "end_time": "1:00"},
			wantCode: http.StatusBadRequest,
			wantErr:  "End time must be after start time",
		},
		{
			name:     "end past duration",
			fields:   map[string]string{"player_description": "red", "youtube_url": "https://youtu.be/dQw4w9WgXcQ", "start_time": "0:00", "end_time": "5:00"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "start only",
			fields:   map[string]string{"player_description": "red", "youtube_url": "https://youtu.be/dQw4w9WgXcQ", "start_time": "0:10"},
			wantCode: http.StatusBadRequest,
			wantErr:  "End time is required",
		},
		{
			name:     "garbled time",
			fields:   map[string]string{"player_description": "red", "youtube_url": "https://youtu.be/dQw4w9WgXcQ", "start_time": "ten", "end_time": "1:00"},
			wantCode: http.StatusBadRequest,
			wantErr:  "Invalid start time. Use MM:SS",
		},
		{
			name:     "not a video",
			fields:   map[string]string{"player_description": "red"},
			fileName: "notes.txt",
			content:  []byte("hello"),
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, formRequest(t, tt.fields, tt.fileName, tt.content), "user-1")

			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode(t, w)["error"])
			}
			assert.Empty(t, env.queue.jobs)
			assert.Empty(t, env.sources.keys)
		})
	}
}

func TestCreateAnalysisQueueFailure(t *testing.T) {
	env := newTestEnv(t)
	env.queue.err = errors.New("broker down")

	req := formRequest(t, map[string]string{
		"youtube_url":        "https://youtu.be/dQw4w9WgXcQ",
		"player_description": "red",
	}, "", nil)
	w := env.do(t, req, "user-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateAnalysisQueueFailureRemovesUpload(t *testing.T) {
	env := newTestEnv(t)
	env.queue.err = errors.New("broker down")

	req := formRequest(t, map[string]string{
		"player_description": "Player in white",
		"duration":           "600",
	}, "rally.mp4", mp4Header)
	w := env.do(t, req, "user-1")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	require.Len(t, env.sources.keys, 1)
	key := env.sources.keys[0]
	assert.Equal(t, []string{key}, env.sources.deleted)
	assert.NotContains(t, env.sources.bytes, key)

	require.Len(t, env.statuses.statuses, 1)
	for _, status := range env.statuses.statuses {
		assert.Equal(t, models.JobStatusFailed, status.Status)
		assert.Equal(t, "Failed to queue analysis", status.Error)
	}
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)
	_ = env.statuses.SetJobStatus(context.Background(), &models.JobStatus{
		JobID:     "job-1",
		Status:    models.JobStatusCompleted,
		Progress:  100,
		HistoryID: "entry-1",
	}, time.Hour)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, models.JobStatusCompleted, body["status"])
	assert.Equal(t, "entry-1", body["history_id"])

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil), "user-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func saveEntry(t *testing.T, env *testEnv, userID string, score float64) *models.HistoryEntry {
	t.Helper()
	entry := &models.HistoryEntry{
		VideoSource:       models.VideoSourceDescriptor{Type: models.SourceTypeYouTube, VideoID: "dQw4w9WgXcQ"},
		PlayerDescription: "red",
		Analysis:          &models.AnalysisResult{OverallScore: models.Score(score)},
		ModelID:           "gemini-2.0-flash",
	}
	require.NoError(t, env.api.histories(userID).Save(context.Background(), entry))
	return entry
}

func TestHistoryRoutes(t *testing.T) {
	env := newTestEnv(t)
	first := saveEntry(t, env, "user-1", 5)
	saveEntry(t, env, "user-1", 6)
	saveEntry(t, env, "user-2", 9)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history?summaries=1", nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	summaries := decode(t, w)["summaries"].([]interface{})
	assert.Len(t, summaries, 1)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history/"+first.ID, nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, decode(t, w)["id"])

	// entries belong to their owner
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history/"+first.ID, nil), "user-2")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperror.KindNotFound), decode(t, w)["kind"])

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history/export", nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "smashers-history.json")
	var exported []models.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Len(t, exported, 2)

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/history/"+first.ID, nil), "user-1")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/history/"+first.ID, nil), "user-1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil), "user-1")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"clips/user-1/"}, env.sources.clearedPrefixes)
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history/export", nil), "user-1")
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil), "user-2")
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)
	p := models.DefaultProfile()
	p.ID = "user-1"
	p.DisplayName = "Shuttle Fan"

	env.profiles.On("Get", mock.Anything, "user-1").Return(&p, nil)
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["avatar_url"])
	assert.Equal(t, "Shuttle Fan", body["profile"].(map[string]interface{})["displayName"])

	name := "Smash King"
	env.profiles.On("Update", mock.Anything, "user-1", mock.MatchedBy(func(u models.ProfileUpdate) bool {
		return u.DisplayName != nil && *u.DisplayName == name
	})).Return(&p, nil)
	w = env.do(t, jsonRequest(http.MethodPatch, "/api/v1/profile", map[string]interface{}{"displayName": name}), "user-1")
	assert.Equal(t, http.StatusOK, w.Code)

	env.profiles.On("Reset", mock.Anything, "user-1").Return(nil, errors.New("db down"))
	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/profile/reset", nil), "user-1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	env.profiles.AssertExpectations(t)
}

func TestEstimate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/estimate", map[string]interface{}{"seconds": 60}), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 15480, body["tokens"])
	assert.Equal(t, "1:00", body["duration"])

	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/estimate", map[string]interface{}{"start": "1:00", "end": "1:30"}), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7740, decode(t, w)["tokens"])

	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/estimate", map[string]interface{}{}), "user-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeasibility(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/feasibility", map[string]interface{}{"size": 500 << 20}), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["shouldTrim"])
	assert.Contains(t, body["warning"], "Large file")
}

func TestYouTubeMetadata(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/youtube/dQw4w9WgXcQ", nil), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 212, body["duration"])
	assert.Equal(t, "3:32", body["formatted"])

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/youtube/unknown", nil), "user-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckAPIKey(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/keys/check", map[string]string{"api_key": "k"}), "user-1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var gotModel string
	env.api.checkKey = func(ctx context.Context, key, model string) (bool, error) {
		gotModel = model
		return key == "good", nil
	}

	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/keys/check", map[string]string{"api_key": "good"}), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])
	assert.Equal(t, "gemini-2.0-flash", gotModel)

	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/keys/check", map[string]string{"api_key": "bad", "model": "gemini-3-pro-preview"}), "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
	assert.Equal(t, "gemini-3-pro-preview", gotModel)
}

func TestCatalogueRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "gemini-2.0-flash", body["default"])
	assert.Len(t, body["models"], 2)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/rubric", nil), "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Len(t, body["pillars"], 3)
	assert.InDelta(t, 0.4, body["weights"].(map[string]interface{})["technical"], 0.0001)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperror.New(apperror.KindNotFound, "x"), http.StatusNotFound},
		{apperror.New(apperror.KindInvalidTimeRange, "x"), http.StatusBadRequest},
		{apperror.New(apperror.KindMissingCredential, "x"), http.StatusUnauthorized},
		{apperror.New(apperror.KindRateLimited, "x"), http.StatusTooManyRequests},
		{apperror.New(apperror.KindTimeout, "x"), http.StatusGatewayTimeout},
		{apperror.New(apperror.KindProvider, "x"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
