package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// allowedUploadMIME restricts uploads to the audio and CSV content the
// pipelines consume. The check runs on sniffed content, not the client's
// declared type.
func allowedUploadMIME(m string) bool {
	m = strings.ToLower(m)
	if strings.HasPrefix(m, "audio/") || strings.HasPrefix(m, "video/") {
		return true
	}
	return strings.HasPrefix(m, "text/csv") || strings.HasPrefix(m, "text/plain") ||
		m == "application/octet-stream"
}

// UploadFileHandler stores an uploaded file in the blob store and records a
// file reference. Used for listings' audio and CSV exports.
func (s *Server) UploadFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file field required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read file: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		mime := mimetype.Detect(data)
		if !allowedUploadMIME(mime.String()) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{
				Code:    "INVALID_ARGUMENT",
				Message: "unsupported media type",
				Details: map[string]any{"mime": mime.String(), "filename": header.Filename},
			}})
			return
		}

		blobPath := "uploads/" + uuid.NewString() + strings.ToLower(path.Ext(header.Filename))
		if err := s.Blobs.Save(r.Context(), blobPath, data); err != nil {
			writeError(w, r, err, nil)
			return
		}
		id, err := s.Files.Create(r.Context(), domain.FileRef{
			AppID:  appID(r),
			UserID: userID(r),
			Name:   header.Filename,
			Path:   blobPath,
			MIME:   mime.String(),
			Size:   int64(len(data)),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		ref, err := s.Files.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toFileView(ref))
	}
}

// DownloadFileHandler streams stored bytes back with the sniffed MIME type.
func (s *Server) DownloadFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := s.Files.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		data, err := s.Blobs.Read(r.Context(), ref.Path)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", ref.MIME)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref.Name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
