package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

// SnapshotPrefix is the key prefix under which snapshot archives are stored.
const SnapshotPrefix = "snapshots/"

// multipartThreshold is the payload size above which the archiver switches
// to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.SnapshotArchiver by serialising refresh
// snapshots to JSON and uploading them to object storage, partitioned by
// the fetch date.
//
// Archival is best-effort cold storage: the primary serving path never
// depends on it, and failures are surfaced to the caller to log rather
// than to abort a refresh.
type Archiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// multipartWriter is satisfied by writers that support multipart uploads
// for large payloads.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer: writer,
		logger: logger.With(slog.String("component", "s3_archiver")),
	}
}

// ArchiveSnapshot uploads the snapshot as a JSON document keyed by its
// fetch time and returns the object path.
//
//	snapshots/2025/01/31/153045.json
func (a *Archiver) ArchiveSnapshot(ctx context.Context, snap domain.Snapshot) (string, error) {
	buf, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot marshal: %w", err)
	}

	path := snapshotPath(snap.FetchedAt)

	if mw, ok := a.writer.(multipartWriter); ok && len(buf) > multipartThreshold {
		err = mw.PutMultipart(ctx, path, bytes.NewReader(buf), "application/json", minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot upload: %w", err)
	}

	a.logger.Debug("snapshot archived",
		slog.String("path", path),
		slog.Int("opportunities", len(snap.Opportunities)),
		slog.Int("bytes", len(buf)))

	return path, nil
}

// snapshotPath builds the S3 key for a snapshot, partitioned by date so
// that prefix listings stay cheap.
func snapshotPath(fetchedAt time.Time) string {
	t := fetchedAt.UTC()
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return fmt.Sprintf("%s%s.json", SnapshotPrefix, t.Format("2006/01/02/150405"))
}

var _ domain.SnapshotArchiver = (*Archiver)(nil)
