package source

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(repo *fakeRepo) *Handler {
	svc := newTestService(repo, &fakePublisher{}, &fakeIndex{})
	return NewHandler(svc)
}

func TestHandler_Create(t *testing.T) {
	repo := newFakeRepo()
	handler := newTestHandler(repo)

	body := `{"name": "checkout docs", "format": "text", "content": "the discount code field accepts SAVE20"}`
	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data Source `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "src-1", resp.Data.ID)
	assert.Equal(t, "in_progress", resp.Data.Status)
	assert.Equal(t, 1, resp.Data.ChunkCount)
}

func TestHandler_Create_MissingName(t *testing.T) {
	handler := newTestHandler(newFakeRepo())

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{"content": "abc"}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandler_Create_EmptyContent(t *testing.T) {
	handler := newTestHandler(newFakeRepo())

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{"name": "doc", "content": "  "}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Content is required")
}

func TestHandler_Create_Duplicate(t *testing.T) {
	repo := newFakeRepo()
	repo.exists = true
	handler := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{"name": "doc", "content": "abc"}`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Duplicate detected")
}

func TestHandler_Create_TooLarge(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakePublisher{}, &fakeIndex{}, 1000, 200, 10)
	handler := NewHandler(svc)

	body, _ := json.Marshal(map[string]string{"name": "doc", "content": strings.Repeat("x", 11)})
	req := httptest.NewRequest(http.MethodPost, "/sources", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandler_Create_InvalidJSON(t *testing.T) {
	handler := newTestHandler(newFakeRepo())

	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(`{invalid`))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_List_EmptyReturnsArray(t *testing.T) {
	handler := newTestHandler(newFakeRepo())

	req := httptest.NewRequest(http.MethodGet, "/sources", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestHandler_Get(t *testing.T) {
	repo := newFakeRepo()
	repo.stored["src-1"] = &Source{ID: "src-1", Name: "doc", Status: "completed"}
	repo.chunks = []Chunk{{ChunkID: "c1", SourceID: "src-1", Content: "text", EndOffset: 4}}
	handler := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/sources/src-1", nil)
	req.SetPathValue("id", "src-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data SourceDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "src-1", resp.Data.ID)
	assert.Equal(t, 1, resp.Data.TotalChunks)
	require.Len(t, resp.Data.Chunks, 1)
	assert.Equal(t, "c1", resp.Data.Chunks[0].ChunkID)
}

func TestHandler_Get_ExcludeChunks(t *testing.T) {
	repo := newFakeRepo()
	repo.stored["src-1"] = &Source{ID: "src-1", Name: "doc"}
	repo.chunks = []Chunk{{ChunkID: "c1"}}
	handler := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/sources/src-1?exclude_chunks=true", nil)
	req.SetPathValue("id", "src-1")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data SourceDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Chunks)
	assert.Equal(t, 1, resp.Data.TotalChunks)
}

func TestHandler_Delete(t *testing.T) {
	repo := newFakeRepo()
	repo.stored["src-1"] = &Source{ID: "src-1"}
	handler := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/sources/src-1", nil)
	req.SetPathValue("id", "src-1")
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ReSync_NotFound(t *testing.T) {
	handler := newTestHandler(newFakeRepo())

	req := httptest.NewRequest(http.MethodPost, "/sources/missing/resync", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()

	handler.ReSync(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}
