package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rateright/rateright/internal/inquiry"
	"github.com/rateright/rateright/internal/intent"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/search"
	"github.com/rateright/rateright/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(t.Context()))

	resolver := intent.NewResolver(st, nil, nil, intent.ResolverOpts{})
	searchSvc := search.NewService(st, resolver, nil, nil, nil, search.Opts{})
	inquiries := inquiry.NewService(st, nil, nil, nil, inquiry.Opts{})
	return newRouter(searchSvc, inquiries)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_SearchValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search",
		bytes.NewBufferString(`{"query":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search",
		bytes.NewBufferString(`{"query":"tire change","latitude":200,"longitude":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search",
		bytes.NewBufferString(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SearchEmptyCatalog(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search",
		bytes.NewBufferString(`{"query":"tire change","latitude":51.5,"longitude":-0.1}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tire change", resp.Query)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.DiscoveryTriggered)
}

func TestRouter_InquiryValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inquiries",
		bytes.NewBufferString(`{"provider_id":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_InquiryWithoutMailConfigured(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inquiries",
		bytes.NewBufferString(`{"provider_id":"prov-1","service_type":"tire_change"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRouter_CheckReplies(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inquiries/check-replies", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":0}`, rec.Body.String())
}
