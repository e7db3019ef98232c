package handler

import (
	"log/slog"
	"net/http"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// ArchiveHandler serves the list of archived snapshots held in object
// storage.
type ArchiveHandler struct {
	reader domain.BlobReader // optional; when nil, List returns 501
	prefix string
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler that lists objects under the
// given key prefix.
func NewArchiveHandler(reader domain.BlobReader, prefix string, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, prefix: prefix, logger: logger}
}

// List returns metadata for archived snapshots. An optional prefix query
// parameter narrows the listing to a date partition, e.g. prefix=2025/01.
// GET /api/archives?prefix=2025/01
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusNotImplemented, "snapshot archival not configured")
		return
	}

	prefix := h.prefix + r.URL.Query().Get("prefix")

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}
