package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/petwatch/internal/domain"
	"github.com/John-Robertt/petwatch/internal/snapshot"
	"github.com/John-Robertt/petwatch/internal/taxonomy"
)

func init() { gin.SetMode(gin.TestMode) }

type fixedStore struct {
	snap domain.Snapshot
	err  error
}

func (s fixedStore) Load(ctx context.Context) (domain.Snapshot, error) { return s.snap, s.err }
func (s fixedStore) Save(ctx context.Context, records []domain.Record, at time.Time) error {
	return errors.New("read only")
}
func (s fixedStore) Close() error { return nil }

func newServer(store snapshot.Store) *Server {
	return &Server{Store: store, Classifier: taxonomy.New(taxonomy.Default())}
}

func sample() domain.Snapshot {
	at := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)
	return domain.Snapshot{
		LastCheckedAt: &at,
		Records: []domain.Record{
			{Identity: "1", Title: "黃金獵犬完全飼養指南", AnimalTypes: []string{"狗"}, Topics: []string{"照護飼養"}},
			{Identity: "2", Title: "貓咪健康百科", AnimalTypes: []string{"貓"}, Topics: []string{"醫療健康", "圖鑑百科"}},
			// 旧快照：没有标签，读取时补分类
			{Identity: "3", Title: "狗狗行為訓練"},
		},
	}
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body=%s", w.Body.String())
	return w.Code, body
}

func TestHealthz(t *testing.T) {
	code, body := get(t, newServer(fixedStore{}).Router(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListRecords_FilterAndPage(t *testing.T) {
	r := newServer(fixedStore{snap: sample()}).Router()

	code, body := get(t, r, "/api/records")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total"])

	code, body = get(t, r, "/api/records?animal="+url.QueryEscape("狗"))
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	_, body = get(t, r, "/api/records?animal="+url.QueryEscape("狗")+"&topic="+url.QueryEscape("行為訓練"))
	assert.EqualValues(t, 1, body["total"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "3", data[0].(map[string]any)["identity"])

	_, body = get(t, r, "/api/records?page=2&limit=2")
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["data"].([]any), 1)

	_, body = get(t, r, "/api/records?page=9")
	assert.Len(t, body["data"].([]any), 0)
}

func TestListRecords_HugePage(t *testing.T) {
	r := newServer(fixedStore{snap: sample()}).Router()

	code, body := get(t, r, "/api/records?page=9223372036854775807&limit=2")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["data"].([]any), 0)
}

func TestSummary(t *testing.T) {
	code, body := get(t, newServer(fixedStore{snap: sample()}).Router(), "/api/summary")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["total"])
	assert.Equal(t, "2026-03-01T01:00:00Z", body["lastCheckedAt"])
	animals := body["animals"].([]any)
	require.NotEmpty(t, animals)
	first := animals[0].(map[string]any)
	assert.Equal(t, "狗", first["label"])
	assert.EqualValues(t, 2, first["count"])
}

func TestSummary_EmptySnapshot(t *testing.T) {
	code, body := get(t, newServer(fixedStore{}).Router(), "/api/summary")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["total"])
	assert.Nil(t, body["lastCheckedAt"])
	assert.Equal(t, []any{}, body["animals"])
}

func TestLabels(t *testing.T) {
	_, body := get(t, newServer(fixedStore{}).Router(), "/api/labels")
	animals := body["animals"].([]any)
	assert.Equal(t, "貓", animals[0])
	assert.Equal(t, taxonomy.AnimalSentinel, animals[len(animals)-1])
}

func TestLoadError(t *testing.T) {
	st := fixedStore{err: &snapshot.Error{Code: snapshot.CodeCorrupt, Op: "load", Err: errors.New("bad")}}
	code, body := get(t, newServer(st).Router(), "/api/records")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, domain.ErrCodeSnapshotCorrupt, body["error_code"])
}
