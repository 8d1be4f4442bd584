package gallery

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"dorogallery/internal/api"
	"dorogallery/internal/domain"
	"dorogallery/internal/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeClient is an api.Client whose calls are answered by the func fields.
type fakeClient struct {
	mu      sync.Mutex
	queries []domain.Query

	list        func(q domain.Query) (*domain.Page[domain.Sticker], error)
	get         func(id string) (*domain.Sticker, error)
	like        func(id string) (*domain.ReactionResult, error)
	dislike     func(id string) (*domain.ReactionResult, error)
	upload      func(req api.UploadRequest) (*domain.OperationResult, error)
	describe    func(id, d string) (*domain.Sticker, error)
	retag       func(id string, tags []string) (*domain.Sticker, error)
	deleteOne   func(id string) (*domain.OperationResult, error)
	popularTags func() ([]domain.HotTag, error)
}

var errNotStubbed = errors.New("not stubbed")

var _ api.Client = (*fakeClient)(nil)

func (f *fakeClient) ListStickers(_ context.Context, q domain.Query) (*domain.Page[domain.Sticker], error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.list == nil {
		return nil, errNotStubbed
	}
	return f.list(q)
}

func (f *fakeClient) recorded() []domain.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Query(nil), f.queries...)
}

func (f *fakeClient) GetSticker(_ context.Context, id string) (*domain.Sticker, error) {
	if f.get == nil {
		return nil, errNotStubbed
	}
	return f.get(id)
}

func (f *fakeClient) Like(_ context.Context, id string) (*domain.ReactionResult, error) {
	if f.like == nil {
		return nil, errNotStubbed
	}
	return f.like(id)
}

func (f *fakeClient) Dislike(_ context.Context, id string) (*domain.ReactionResult, error) {
	if f.dislike == nil {
		return nil, errNotStubbed
	}
	return f.dislike(id)
}

func (f *fakeClient) Upload(_ context.Context, req api.UploadRequest) (*domain.OperationResult, error) {
	if f.upload == nil {
		return nil, errNotStubbed
	}
	return f.upload(req)
}

func (f *fakeClient) UpdateDescription(_ context.Context, id, description string) (*domain.Sticker, error) {
	if f.describe == nil {
		return nil, errNotStubbed
	}
	return f.describe(id, description)
}

func (f *fakeClient) UpdateTags(_ context.Context, id string, tags []string) (*domain.Sticker, error) {
	if f.retag == nil {
		return nil, errNotStubbed
	}
	return f.retag(id, tags)
}

func (f *fakeClient) DeleteSticker(_ context.Context, id string) (*domain.OperationResult, error) {
	if f.deleteOne == nil {
		return nil, errNotStubbed
	}
	return f.deleteOne(id)
}

func (f *fakeClient) PopularTags(context.Context) ([]domain.HotTag, error) {
	if f.popularTags == nil {
		return nil, errNotStubbed
	}
	return f.popularTags()
}

// recordingNotifier keeps every message shown to the user.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

// memRepo is an in-memory storage.LedgerRepository.
type memRepo struct {
	mu      sync.Mutex
	data    map[string][]string
	saveErr error
	// midSave, when set, runs between the two list writes of SaveLedger.
	midSave func()
}

func newMemRepo() *memRepo { return &memRepo{data: map[string][]string{}} }

func (m *memRepo) LoadIDs(_ context.Context, namespace, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.data[namespace+"/"+key]...), nil
}

func (m *memRepo) SaveIDs(_ context.Context, namespace, key string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[namespace+"/"+key] = append([]string{}, ids...)
	return nil
}

func (m *memRepo) SaveLedger(_ context.Context, namespace string, liked, disliked []string) error {
	m.mu.Lock()
	if m.saveErr != nil {
		m.mu.Unlock()
		return m.saveErr
	}
	m.data[namespace+"/"+storage.LikedKey] = append([]string{}, liked...)
	hook := m.midSave
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespace+"/"+storage.DislikedKey] = append([]string{}, disliked...)
	return nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) get(namespace, key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[namespace+"/"+key]
}

func stickers(ids ...string) []domain.Sticker {
	out := make([]domain.Sticker, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Sticker{ID: id, MD5: "m" + id, URL: "https://cdn.example.com/" + id + ".png"})
	}
	return out
}

func pageOf(page, pages int, ids ...string) *domain.Page[domain.Sticker] {
	return &domain.Page[domain.Sticker]{Items: stickers(ids...), Total: pages * 2, Page: page, Size: 2, Pages: pages}
}

func ids(ss []domain.Sticker) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}

type fixture struct {
	client *fakeClient
	repo   *memRepo
	notify *recordingNotifier
	g      *Gallery
}

func newFixture() *fixture {
	f := &fixture{client: &fakeClient{}, repo: newMemRepo(), notify: &recordingNotifier{}}
	ledger := NewLedger(f.repo, "", quietLogger())
	f.g = New(f.client, ledger, f.notify, Options{PageSize: 2}, quietLogger())
	return f
}
