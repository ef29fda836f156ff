package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"pmsf-backend/internal/service"
)

// MediaHandler accepts evidence photos and videos for visit items.
type MediaHandler struct {
	Service *service.MediaService
	Logger  *slog.Logger
}

func (h MediaHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload-media", h.upload)
}

func (h MediaHandler) upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.Service.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*service.MaxMediaFiles+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(headers) > service.MaxMediaFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("At most %d files can be uploaded at once", service.MaxMediaFiles))
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read uploaded file")
			return
		}
		// One byte past the limit lets the service report the oversize file.
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read uploaded file")
			return
		}
		files = append(files, service.UploadFile{Filename: fh.Filename, Data: data})
	}

	year, _ := strconv.Atoi(r.FormValue("visitYear"))
	quarter, _ := strconv.Atoi(r.FormValue("visitQuarter"))
	stored, err := h.Service.Save(r.Context(), service.MediaTarget{
		BranchCode:   r.FormValue("branchCode"),
		ActivityCode: r.FormValue("activityCode"),
		Year:         year,
		Quarter:      quarter,
	}, files)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	names := make([]string, len(stored))
	for i, s := range stored {
		names[i] = s.FileName
	}
	writeMessage(w, http.StatusOK, "Files uploaded successfully", map[string]any{
		"files":     stored,
		"fileNames": names,
	})
}
