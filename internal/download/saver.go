package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Saver hands finished files to the user: a directory, a chat, ...
type Saver interface {
	// Save delivers data under name and returns where it went.
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// FileSaver writes files into a directory.
type FileSaver struct {
	dir string
	log logrus.FieldLogger
}

// NewFileSaver creates a saver rooted at dir. The directory is created on
// first use.
func NewFileSaver(dir string, logger logrus.FieldLogger) *FileSaver {
	return &FileSaver{dir: dir, log: logger.WithField("component", "file_saver")}
}

// Save writes data atomically (temp file + rename). Only the base name of
// name is used.
func (s *FileSaver) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	dst := filepath.Join(s.dir, filepath.Base(name))

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}

	s.log.WithFields(logrus.Fields{"path": dst, "bytes": len(data)}).Info("File saved")
	return dst, nil
}
