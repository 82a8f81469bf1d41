// Package httpapi implements §6.2's "contractual" HTTP surface: upload,
// download, shared-link download, cascading chat delete, and the export
// request/status/download/clear endpoints. The authentication provider is
// explicitly out of scope (spec.md §1); every handler here trusts an
// already-resolved user id the way gateway.Server's UserResolver trusts its
// caller for the socket upgrade.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/orchestrax/workflow-orchestrator/internal/export"
	"github.com/orchestrax/workflow-orchestrator/internal/files"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// UserIdentity extracts the caller's user id from an inbound HTTP request.
// Left to the deployment the same way gateway.UserResolver is.
type UserIdentity func(r *http.Request) (userID string, ok bool)

// Handler wires internal/files and internal/export onto the §6.2 routes.
type Handler struct {
	Files   *files.Service
	Export  *export.Service
	Resolve UserIdentity
}

// Mount registers every route on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload", h.upload)
	mux.HandleFunc("GET /files/{id}", h.download)
	mux.HandleFunc("GET /share/{token}/files/{id}", h.downloadShared)
	mux.HandleFunc("DELETE /chat/{id}", h.deleteChat)
	mux.HandleFunc("POST /export/request", h.requestExport)
	mux.HandleFunc("GET /export/status", h.exportStatus)
	mux.HandleFunc("GET /export/download", h.exportDownload)
	mux.HandleFunc("DELETE /export", h.exportClear)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := h.Resolve(r)
	if !ok {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// upload handles `POST /upload` -> file handle (§6.2).
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("parse form: %v", err), http.StatusBadRequest)
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing \"file\" field", http.StatusBadRequest)
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		http.Error(w, fmt.Sprintf("read upload: %v", err), http.StatusBadRequest)
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	conversationID := r.FormValue("conversation_id")

	file, err := h.Files.Upload(r.Context(), userID, conversationID, header.Filename, mime, data, "upload")
	if err != nil {
		var unsupported files.ErrUnsupportedMime
		if asErrUnsupportedMime(err, &unsupported) {
			http.Error(w, unsupported.Error(), http.StatusUnsupportedMediaType)
			return
		}
		http.Error(w, fmt.Sprintf("upload: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, fileHandle(file))
}

// download handles `GET /files/{id}` -> bytes + content-disposition.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	file, data, err := h.Files.Download(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeAttachment(w, file, data)
}

// downloadShared handles `GET /share/{token}/files/{id}` -> bytes if the
// token is valid and the file belongs to the shared conversation.
func (h *Handler) downloadShared(w http.ResponseWriter, r *http.Request) {
	file, data, err := h.Files.ResolveSharedFile(r.Context(), r.PathValue("token"), r.PathValue("id"))
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeAttachment(w, file, data)
}

// deleteChat handles `DELETE /chat/{id}` -> cascades to files (and, once
// wired to the session table, active sessions).
func (h *Handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.Files.DeleteConversation(r.Context(), userID, r.PathValue("id")); err != nil {
		http.Error(w, fmt.Sprintf("delete chat: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestExport handles `POST /export/request` -> 202.
func (h *Handler) requestExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.Export.RequestExport(r.Context(), userID); err != nil {
		if err == export.ErrExportInProgress {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, fmt.Sprintf("request export: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// exportStatus handles `GET /export/status`.
func (h *Handler) exportStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	status, err := h.Export.Status(r.Context(), userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("export status: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// exportDownload handles `GET /export/download` -> zip.
func (h *Handler) exportDownload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	data, err := h.Export.Download(r.Context(), userID)
	if err != nil {
		if err == kvstore.ErrNotFound {
			http.Error(w, "no export bundle is ready", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("export download: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="export.zip"`)
	_, _ = w.Write(data)
}

// exportClear handles `DELETE /export`.
func (h *Handler) exportClear(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.Export.Clear(r.Context(), userID); err != nil {
		http.Error(w, fmt.Sprintf("clear export: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fileHandleResponse struct {
	FileID     string   `json:"file_id"`
	Filename   string   `json:"filename"`
	Mime       string   `json:"mime"`
	Size       int64    `json:"size"`
	Indexed    bool     `json:"indexed"`
	UploadedAt int64    `json:"uploaded_at"`
	Source     string   `json:"source"`
	VectorIDs  []string `json:"vector_ids,omitempty"`
}

func fileHandle(f kvstore.File) fileHandleResponse {
	return fileHandleResponse{
		FileID:     f.ID,
		Filename:   f.Filename,
		Mime:       f.Mime,
		Size:       f.Size,
		Indexed:    f.Indexed,
		UploadedAt: f.CreatedAtUnixMillis,
		Source:     f.Source,
		VectorIDs:  f.VectorIDs,
	}
}

func writeFileError(w http.ResponseWriter, err error) {
	if err == kvstore.ErrNotFound {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	http.Error(w, fmt.Sprintf("download: %v", err), http.StatusInternalServerError)
}

func writeAttachment(w http.ResponseWriter, file kvstore.File, data []byte) {
	w.Header().Set("Content-Type", file.Mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, file.Filename))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func asErrUnsupportedMime(err error, target *files.ErrUnsupportedMime) bool {
	unsupported, ok := err.(files.ErrUnsupportedMime)
	if !ok {
		return false
	}
	*target = unsupported
	return true
}
