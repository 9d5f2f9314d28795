package api

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/atf-feed/app/config"
	"github.com/lysyi3m/atf-feed/app/database"
	"github.com/lysyi3m/atf-feed/app/feed"
	"github.com/lysyi3m/atf-feed/app/schema"
	"github.com/lysyi3m/atf-feed/app/security"
	"github.com/lysyi3m/atf-feed/app/tasks"
	"github.com/lysyi3m/atf-feed/app/validator"
)

const testAPIKey = "test-key"

var (
	testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

type mockArchiveStore struct {
	archives map[string]*database.Archive
	fail     bool
}

func (m *mockArchiveStore) CreateArchive(version string, content []byte, signature string, now time.Time) (*database.Archive, error) {
	return nil, errors.New("not used")
}

func (m *mockArchiveStore) GetArchive(id string) (*database.Archive, error) {
	if m.fail {
		return nil, errors.New("disk I/O error")
	}
	if a, ok := m.archives[id]; ok {
		return a, nil
	}
	return nil, database.ErrArchiveNotFound
}

func (m *mockArchiveStore) FindByChecksum(checksum string) (*database.Archive, error) {
	return nil, nil
}

func (m *mockArchiveStore) ListArchives(limit int) ([]database.Archive, error) {
	if m.fail {
		return nil, errors.New("disk I/O error")
	}
	out := []database.Archive{}
	for _, a := range m.archives {
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockArchiveStore) GetArchiveCount() (int, error) {
	if m.fail {
		return 0, errors.New("disk I/O error")
	}
	return len(m.archives), nil
}

func (m *mockArchiveStore) VerifyIntegrity(now time.Time) (*database.IntegrityReport, error) {
	return &database.IntegrityReport{}, nil
}

type mockScheduler struct {
	enqueued []tasks.TaskInterface
	full     bool
}

func (m *mockScheduler) Start() {}
func (m *mockScheduler) Stop()  {}

func (m *mockScheduler) EnqueueTask(task tasks.TaskInterface) error {
	if m.full {
		return errors.New("task queue is full")
	}
	m.enqueued = append(m.enqueued, task)
	return nil
}

type testServer struct {
	router    *gin.Engine
	handler   *Handler
	store     *mockArchiveStore
	scheduler *mockScheduler
	signer    *security.Signer
	tokens    *security.TokenManager
}

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = security.GenerateKey(security.DefaultKeyBits)
		require.NoError(t, err)
	})
	return testKey
}

func newTestServer(t *testing.T, apiKey string, withSigning bool) *testServer {
	t.Helper()

	s, err := schema.Default()
	require.NoError(t, err)
	policy, err := config.NewLoader("").Load()
	require.NoError(t, err)
	v, err := validator.New(s, policy.RulePolicy(), 64*1024)
	require.NoError(t, err)

	ts := &testServer{
		store: &mockArchiveStore{archives: map[string]*database.Archive{
			"a1": {ID: "a1", Version: "v1", Content: "<atf/>", Checksum: "abc", CreatedAt: testNow},
		}},
		scheduler: &mockScheduler{},
	}
	if withSigning {
		key := signingKey(t)
		ts.signer = security.NewSigner(key)
		ts.tokens = security.NewTokenManager(key, "atf-feed", "atf-api")
	}

	registry := prometheus.NewRegistry()
	ts.handler = NewHandler(v, ts.store, ts.scheduler, ts.signer, ts.tokens, NewMetrics(registry))
	ts.handler.now = func() time.Time { return testNow }
	ts.router = NewServer(ts.handler, apiKey, registry)
	return ts
}

func (ts *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func authHeaders() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

func fixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "feed.xml"))
	require.NoError(t, err)
	return string(data)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	w := ts.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]any](t, w)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["archives"])

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/live", nil, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health/ready", nil, nil).Code)

	ts.store.fail = true
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/health/ready", nil, nil).Code)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	w := ts.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	preflight := ts.do(http.MethodOptions, "/api/feeds/validate", nil, nil)
	assert.Equal(t, http.StatusNoContent, preflight.Code)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, testAPIKey, true)

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/archives", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		ts.do(http.MethodGet, "/api/archives", nil, map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/archives", nil, authHeaders()).Code)
	assert.Equal(t, http.StatusOK,
		ts.do(http.MethodGet, "/api/archives", nil, map[string]string{"Authorization": "Bearer " + testAPIKey}).Code)

	w := ts.do(http.MethodPost, "/api/tokens", TokenRequest{Subject: "publisher"}, authHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode[TokenResponse](t, w)
	assert.NotEmpty(t, token.Token)

	bearer := map[string]string{"Authorization": "Bearer " + token.Token}
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/archives", nil, bearer).Code)
	assert.Equal(t, http.StatusForbidden,
		ts.do(http.MethodPost, "/api/tokens", TokenRequest{Subject: "other"}, bearer).Code)
}

func TestAPIWithoutAuthentication(t *testing.T) {
	ts := newTestServer(t, "", false)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/archives", nil, nil).Code)

	w := ts.do(http.MethodPost, "/api/tokens", TokenRequest{Subject: "publisher"}, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestValidateFeed(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	w := ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: fixture(t)}, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ValidateResponse](t, w)
	assert.True(t, resp.IsValid, "%+v", resp.Errors)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, feed.Checksum([]byte(fixture(t))), resp.Checksum)

	invalid := strings.Replace(fixture(t), "<language>en-us</language>", "<language>xx-yy</language>", 1)
	w = ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: invalid}, authHeaders())
	resp = decode[ValidateResponse](t, w)
	assert.False(t, resp.IsValid)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, feed.KindLanguageUnsupported, resp.Errors[0].Kind)

	w = ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: "<atf"}, authHeaders())
	resp = decode[ValidateResponse](t, w)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, feed.KindParseError, resp.Errors[0].Kind)

	w = ts.do(http.MethodPost, "/api/feeds/validate", map[string]string{}, authHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateFeedSignature(t *testing.T) {
	ts := newTestServer(t, testAPIKey, true)
	content := fixture(t)

	sig, err := ts.signer.Sign([]byte(content))
	require.NoError(t, err)

	w := ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: content, Signature: sig}, authHeaders())
	resp := decode[ValidateResponse](t, w)
	assert.True(t, resp.IsValid, "%+v", resp.Errors)

	w = ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: content, Signature: "00ff"}, authHeaders())
	resp = decode[ValidateResponse](t, w)
	assert.False(t, resp.IsValid)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, feed.KindSignatureInvalid, resp.Errors[0].Kind)
}

func TestCompareFeeds(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)
	first := fixture(t)
	second := strings.Replace(first, "Search ranking update", "Search ranking refresh", 1)

	w := ts.do(http.MethodPost, "/api/feeds/compare", CompareRequest{Feed1: first, Feed2: second}, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]any](t, w)
	assert.Equal(t, false, resp["identical"])
	modified, ok := resp["modified_items"].([]any)
	require.True(t, ok)
	assert.Len(t, modified, 1)

	w = ts.do(http.MethodPost, "/api/feeds/compare", CompareRequest{Feed1: first, Feed2: first}, authHeaders())
	resp = decode[map[string]any](t, w)
	assert.Equal(t, true, resp["identical"])

	w = ts.do(http.MethodPost, "/api/feeds/compare", CompareRequest{Feed1: first, Feed2: "<broken"}, authHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	failure := decode[map[string]any](t, w)
	assert.Equal(t, "second", failure["side"])
	assert.Equal(t, string(feed.KindParseError), failure["code"])
}

func TestChecksum(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	w := ts.do(http.MethodPost, "/api/feeds/checksum", []byte("hello"), authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ChecksumResponse](t, w)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", resp.Checksum)
	assert.Equal(t, 5, resp.SizeBytes)

	w = ts.do(http.MethodPost, "/api/feeds/checksum", bytes.Repeat([]byte("a"), 64*1024+1), authHeaders())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestJSONBodyLimit(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	limit := requestBodyLimit(64 * 1024)
	huge := strings.Repeat("a", int(limit))

	w := ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: huge}, authHeaders())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = ts.do(http.MethodPost, "/api/feeds/compare", CompareRequest{Feed1: huge[:limit/2], Feed2: huge[:limit/2]}, authHeaders())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = ts.do(http.MethodPost, "/api/feeds/archive", ArchiveRequest{Content: huge}, authHeaders())
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// an oversized document within the body limit reaches the size guard
	w = ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: huge[:128*1024]}, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ValidateResponse](t, w)
	assert.False(t, resp.IsValid)
}

func TestCreateFeed(t *testing.T) {
	ts := newTestServer(t, testAPIKey, true)

	config := feed.GeneratorConfig{
		Title:       "Example Platform",
		Link:        "https://example.com",
		Description: "Algorithm changes",
		Language:    "en-us",
		Items: []feed.ItemConfig{{
			Title:         "Ranking update",
			Link:          "https://example.com/ranking",
			Description:   "New ranking model",
			PubDate:       "2024-01-10T00:00:00Z",
			Categories:    []string{"Ranking Algorithm"},
			ImpactSummary: "Better results",
			AffectedUsers: "20%",
		}},
	}

	w := ts.do(http.MethodPost, "/api/feeds", config, authHeaders())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[CreateFeedResponse](t, w)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "20250601T000000Z", resp.Version)
	assert.Contains(t, resp.Content, "<title>Ranking update</title>")
	assert.True(t, resp.Validation.IsValid, "%+v", resp.Validation.Errors)
	assert.NoError(t, security.Verify(ts.signer.PublicKey(), []byte(resp.Content), resp.Signature))

	config.Items[0].Template = "missing_template"
	w = ts.do(http.MethodPost, "/api/feeds", config, authHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestArchiveFeed(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	w := ts.do(http.MethodPost, "/api/feeds/archive", ArchiveRequest{Content: fixture(t), Version: "2025.06"}, authHeaders())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode[ArchiveResponse](t, w)
	assert.Equal(t, "queued", resp.Status)
	require.Len(t, ts.scheduler.enqueued, 1)
	assert.Equal(t, tasks.TaskTypeArchiveFeed, ts.scheduler.enqueued[0].GetType())
	assert.Equal(t, "2025.06", ts.scheduler.enqueued[0].GetTarget())

	w = ts.do(http.MethodPost, "/api/feeds/archive", ArchiveRequest{Content: "<atf/>", Version: "bad"}, authHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, ts.scheduler.enqueued, 1)

	ts.scheduler.full = true
	w = ts.do(http.MethodPost, "/api/feeds/archive", ArchiveRequest{Content: fixture(t), Version: "2025.07"}, authHeaders())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestArchives(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)

	w := ts.do(http.MethodGet, "/api/archives?limit=10", nil, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), list["total"])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/archives?limit=zero", nil, authHeaders()).Code)

	w = ts.do(http.MethodGet, "/api/archives/a1", nil, authHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	archive := decode[database.Archive](t, w)
	assert.Equal(t, "v1", archive.Version)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/archives/missing", nil, authHeaders()).Code)

	ts.store.fail = true
	assert.Equal(t, http.StatusInternalServerError, ts.do(http.MethodGet, "/api/archives/a1", nil, authHeaders()).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testAPIKey, false)
	ts.do(http.MethodPost, "/api/feeds/validate", ValidateRequest{Content: fixture(t)}, authHeaders())

	w := ts.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `atf_validations_total{result="valid"} 1`)
}
