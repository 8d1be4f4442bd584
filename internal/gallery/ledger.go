package gallery

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"dorogallery/internal/storage"
)

// Ledger remembers which stickers this user liked or disliked. The in-memory
// sets are the source of truth between Load and Save. An id is never in both
// sets.
type Ledger struct {
	repo      storage.LedgerRepository
	namespace string
	log       logrus.FieldLogger

	// saveMu orders writers so the last snapshot taken is the last one stored.
	saveMu sync.Mutex

	mu       sync.RWMutex
	liked    []string
	disliked []string
}

// NewLedger creates a ledger persisted in repo under namespace ("" for the
// default, single-user namespace).
func NewLedger(repo storage.LedgerRepository, namespace string, logger logrus.FieldLogger) *Ledger {
	return &Ledger{
		repo:      repo,
		namespace: namespace,
		log:       logger.WithFields(logrus.Fields{"component": "ledger", "namespace": namespace}),
	}
}

// Load replaces the cached sets with the persisted ones.
func (l *Ledger) Load(ctx context.Context) error {
	liked, err := l.repo.LoadIDs(ctx, l.namespace, storage.LikedKey)
	if err != nil {
		return fmt.Errorf("failed to load liked stickers: %w", err)
	}
	disliked, err := l.repo.LoadIDs(ctx, l.namespace, storage.DislikedKey)
	if err != nil {
		return fmt.Errorf("failed to load disliked stickers: %w", err)
	}

	liked = dedupe(liked)
	// Stored data predating the exclusivity rule: the like wins.
	disliked = slices.DeleteFunc(dedupe(disliked), func(id string) bool {
		return slices.Contains(liked, id)
	})

	l.mu.Lock()
	l.liked, l.disliked = liked, disliked
	l.mu.Unlock()

	l.log.WithFields(logrus.Fields{"liked": len(liked), "disliked": len(disliked)}).Debug("Ledger loaded")
	return nil
}

// Save persists both sets in one write. Concurrent saves are serialized from
// snapshot to write.
func (l *Ledger) Save(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.RLock()
	liked := slices.Clone(l.liked)
	disliked := slices.Clone(l.disliked)
	l.mu.RUnlock()

	if err := l.repo.SaveLedger(ctx, l.namespace, liked, disliked); err != nil {
		return fmt.Errorf("failed to save reaction ledger: %w", err)
	}
	return nil
}

// HasLiked reports whether id is in the liked set.
func (l *Ledger) HasLiked(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.liked, id)
}

// HasDisliked reports whether id is in the disliked set.
func (l *Ledger) HasDisliked(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.disliked, id)
}

// Liked returns a copy of the liked ids.
func (l *Ledger) Liked() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.liked)
}

// Disliked returns a copy of the disliked ids.
func (l *Ledger) Disliked() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.disliked)
}

// MarkLiked records a like and drops any dislike of the same id.
func (l *Ledger) MarkLiked(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !slices.Contains(l.liked, id) {
		l.liked = append(l.liked, id)
	}
	l.disliked = remove(l.disliked, id)
}

// UnmarkLiked forgets a like.
func (l *Ledger) UnmarkLiked(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.liked = remove(l.liked, id)
}

// MarkDisliked records a dislike and drops any like of the same id.
func (l *Ledger) MarkDisliked(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !slices.Contains(l.disliked, id) {
		l.disliked = append(l.disliked, id)
	}
	l.liked = remove(l.liked, id)
}

// UnmarkDisliked forgets a dislike.
func (l *Ledger) UnmarkDisliked(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disliked = remove(l.disliked, id)
}

func remove(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
