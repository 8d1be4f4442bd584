package download

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateEntry is returned by Add when the name is already taken.
	ErrDuplicateEntry = errors.New("archive already holds an entry with this name")
	// ErrSealed is returned by Add once Bytes has serialized the archive.
	ErrSealed = errors.New("archive already serialized")
)

// Archive maps file names to contents. Entries are written once, and the
// whole archive is serialized to zip once.
type Archive struct {
	mu      sync.Mutex
	entries map[string][]byte
	created time.Time
	blob    []byte
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{
		entries: make(map[string][]byte),
		created: time.Now(),
	}
}

// Add stores data under name.
func (a *Archive) Add(name string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blob != nil {
		return ErrSealed
	}
	if _, ok := a.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}
	a.entries[name] = data
	return nil
}

// Len is the number of entries.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Names returns entry names in sorted order.
func (a *Archive) Names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedNames()
}

func (a *Archive) sortedNames() []string {
	names := make([]string, 0, len(a.entries))
	for n := range a.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the content stored under name.
func (a *Archive) Get(name string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.entries[name]
	return data, ok
}

// Bytes serializes the archive as zip. The first call seals it; later calls
// return the same blob.
func (a *Archive) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blob != nil {
		return a.blob, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range a.sortedNames() {
		// Images are already compressed.
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: a.created,
		})
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", name, err)
		}
		if _, err := w.Write(a.entries[name]); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	a.blob = buf.Bytes()
	return a.blob, nil
}
