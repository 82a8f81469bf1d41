package httpapi

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/export"
	"github.com/orchestrax/workflow-orchestrator/internal/files"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := kvstore.NewStore(newFakeClient())
	require.NoError(t, err)
	return &Handler{
		Files:  &files.Service{Store: store},
		Export: &export.Service{Store: store, Blobs: newMemBlobStore()},
		Resolve: func(r *http.Request) (string, bool) {
			userID := r.Header.Get("X-User-ID")
			return userID, userID != ""
		},
	}
}

func newMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Mount(mux)
	return mux
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadRejectsUnauthenticatedRequest(t *testing.T) {
	h := newTestHandler(t)
	mux := newMux(h)

	body, contentType := multipartUpload(t, "a.txt", "hi")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	h := newTestHandler(t)
	mux := newMux(h)

	body, contentType := multipartUpload(t, "a.txt", "hello")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	file, err := h.Files.Store.ListUserFiles(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, file, 1)

	req2 := httptest.NewRequest(http.MethodGet, "/files/"+file[0], nil)
	req2.Header.Set("X-User-ID", "u1")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	require.Equal(t, "hello", rec2.Body.String())
}

func TestUploadRejectsUnsupportedMime(t *testing.T) {
	h := newTestHandler(t)
	mux := newMux(h)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "virus.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestExportLifecycleOverHTTP(t *testing.T) {
	h := newTestHandler(t)
	mux := newMux(h)

	req := httptest.NewRequest(http.MethodPost, "/export/request", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/export/status", nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code == http.StatusOK && bytes.Contains(rec.Body.Bytes(), []byte(`"ready"`))
	}, time.Second, 5*time.Millisecond)

	req3 := httptest.NewRequest(http.MethodGet, "/export/download", nil)
	req3.Header.Set("X-User-ID", "u1")
	rec3 := httptest.NewRecorder()
	mux.ServeHTTP(rec3, req3)
	require.Equal(t, http.StatusOK, rec3.Code)
	require.Equal(t, "application/zip", rec3.Header().Get("Content-Type"))

	req4 := httptest.NewRequest(http.MethodDelete, "/export", nil)
	req4.Header.Set("X-User-ID", "u1")
	rec4 := httptest.NewRecorder()
	mux.ServeHTTP(rec4, req4)
	require.Equal(t, http.StatusNoContent, rec4.Code)
}
