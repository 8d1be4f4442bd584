package download

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dorogallery/internal/domain"
)

// ArchivePrefix starts every batch archive name.
const ArchivePrefix = "doro-stickers-"

// ArchiveName returns doro-stickers-{unix millis}.zip.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("%s%d.zip", ArchivePrefix, t.UnixMilli())
}

// Report summarizes a batch download.
type Report struct {
	// Location is where the saver put the archive. Empty when nothing was saved.
	Location  string
	Name      string
	Requested int
	Archived  int
	// Failed holds the ids of stickers left out.
	Failed []string
}

// Downloader retrieves stickers and hands the result to a Saver.
type Downloader struct {
	retriever *Retriever
	saver     Saver
	log       logrus.FieldLogger

	now      func() time.Time
	mu       sync.Mutex
	lastName int64
}

// NewDownloader glues a retriever to a saver.
func NewDownloader(r *Retriever, saver Saver, logger logrus.FieldLogger) *Downloader {
	return &Downloader{
		retriever: r,
		saver:     saver,
		log:       logger.WithField("component", "downloader"),
		now:       time.Now,
	}
}

// nextArchiveName keeps names distinct even when two batches finish in the
// same millisecond.
func (d *Downloader) nextArchiveName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ms := d.now().UnixMilli()
	if ms <= d.lastName {
		ms = d.lastName + 1
	}
	d.lastName = ms
	return ArchiveName(time.UnixMilli(ms))
}

// DownloadOne saves a single sticker under its asset name.
func (d *Downloader) DownloadOne(ctx context.Context, s domain.Sticker) (string, error) {
	asset, err := d.retriever.RetrieveOne(ctx, s)
	if err != nil {
		return "", fmt.Errorf("failed to download sticker %s: %w", s.ID, err)
	}
	return d.saver.Save(ctx, asset.Name, asset.Data)
}

// DownloadBatch zips every retrievable sticker into one archive and saves it.
// An empty selection is a no-op. Individual failures are reported, not
// returned.
func (d *Downloader) DownloadBatch(ctx context.Context, items []domain.Sticker) (*Report, error) {
	report := &Report{Requested: len(items)}
	if len(items) == 0 {
		return report, nil
	}

	batch, err := d.retriever.RetrieveAll(ctx, items)
	report.Failed = batch.Failed()
	if err != nil {
		return report, err
	}

	blob, err := batch.Archive.Bytes()
	if err != nil {
		d.log.WithError(err).Error("Failed to create zip file")
		return report, fmt.Errorf("failed to create zip file: %w", err)
	}
	report.Archived = batch.Archive.Len()
	report.Name = d.nextArchiveName()

	loc, err := d.saver.Save(ctx, report.Name, blob)
	if err != nil {
		d.log.WithError(err).Error("Failed to save archive")
		return report, fmt.Errorf("failed to save archive: %w", err)
	}
	report.Location = loc

	d.log.WithFields(logrus.Fields{
		"name":      report.Name,
		"requested": report.Requested,
		"archived":  report.Archived,
		"failed":    len(report.Failed),
	}).Info("Batch download saved")
	return report, nil
}
