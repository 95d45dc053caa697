package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/CTAG07/tundra/pkg/tundra"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	fsys := fstest.MapFS{
		"base.html":   {Data: []byte(`<title>{[ block title ]}Site{[ endblock ]}</title>`)},
		"page.html":   {Data: []byte(`@extends(base){[ block title ]}{{ name }}{[ endblock ]}`)},
		"link.html":   {Data: []byte(`{{ url(request, "about") }}`)},
		"tags.html":   {Data: []byte(`{% for t in tag: %}[{{ t }}]{% end %}`)},
		"broken.html": {Data: []byte(`{% if x: %}never closed`)},
	}
	loader, err := tundra.NewFSLoader(fsys, "html", "")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	engine, err := tundra.NewEngine(nil, nil, tundra.WithLoader(loader), tundra.WithRegisterer(reg))
	require.NoError(t, err)
	return NewServer(defaultConfig(), discardLogger(), engine, reg)
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthAndVersion(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info VersionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, Version, info.Version)

	rec = doRequest(s, http.MethodPost, "/api/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestServer_Render(t *testing.T) {
	s := setupTestServer(t)

	t.Run("Name", func(t *testing.T) {
		rec := doRequest(s, http.MethodPost, "/api/render", `{"name":"page","data":{"name":"<Home>"}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp RenderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "<title>&lt;Home&gt;</title>", resp.Output)
		assert.Equal(t, "file:page", resp.Key)
		assert.Empty(t, resp.Problems)
	})

	t.Run("Source", func(t *testing.T) {
		rec := doRequest(s, http.MethodPost, "/api/render", `{"source":"{{ a + b }}","data":{"a":1,"b":2}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp RenderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "3", resp.Output)
		assert.True(t, strings.HasPrefix(resp.Key, "src:"))
	})

	t.Run("Problems", func(t *testing.T) {
		rec := doRequest(s, http.MethodPost, "/api/render", `{"source":"@extends(missing)x"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp RenderResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Problems, 1)
	})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"InvalidJSON", `{`, http.StatusBadRequest},
		{"NeitherNameNorSource", `{}`, http.StatusBadRequest},
		{"BothNameAndSource", `{"name":"page","source":"x"}`, http.StatusBadRequest},
		{"NotFound", `{"name":"nope"}`, http.StatusNotFound},
		{"Unbalanced", `{"name":"broken"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/render", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := doRequest(s, http.MethodGet, "/api/render", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Templates(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"base.html", "broken.html", "link.html", "page.html", "tags.html"}, names)

	rec = doRequest(s, http.MethodGet, "/api/templates/exists?name=base", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"base","exists":true}`, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/api/templates/exists?name=nope", "")
	assert.JSONEq(t, `{"name":"nope","exists":false}`, rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/api/templates/exists", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_View(t *testing.T) {
	s := setupTestServer(t)

	rec := doRequest(s, http.MethodGet, "/view/page?name=Docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<title>Docs</title>", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store, no-cache", rec.Header().Get("Cache-Control"))

	rec = doRequest(s, http.MethodGet, "/view/tags?tag=a&tag=b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[a][b]", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/view/link", nil)
	req.Host = "docs.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://docs.example.com/about", rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/view/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodGet, "/view/broken", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = doRequest(s, http.MethodGet, "/view/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s := setupTestServer(t)

	doRequest(s, http.MethodGet, "/view/page?name=x", "")
	doRequest(s, http.MethodGet, "/view/page?name=y", "")

	rec := doRequest(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tundra_compiles_total{source="file"} 1`)
	assert.Contains(t, body, `tundra_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `tundra_render_duration_seconds_count{status="ok"} 2`)
}
