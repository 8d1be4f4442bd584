// Package gallery holds the client-side sticker collection: paginated
// listing with de-duplicated merging, reactions, edits and selection.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"dorogallery/internal/api"
	"dorogallery/internal/domain"
)

var (
	// ErrBusy is returned by LoadMore while another fetch is in flight.
	// Callers treat it as a no-op.
	ErrBusy = errors.New("a fetch is already in progress")
	// ErrNoMore is returned by LoadMore when the last page is loaded.
	ErrNoMore = errors.New("no more pages")
)

// Server messages for a reaction that was withdrawn rather than added.
const (
	likeCancelledMessage    = "取消点赞成功"
	dislikeCancelledMessage = "取消点踩成功"
)

// Options configures a Gallery.
type Options struct {
	PageSize int
	Sort     domain.SortType
}

// Gallery is the client-held sticker collection.
//
// Mutations are serialized by mu, which is never held across a backend
// call. Within the collection, identifiers are unique.
type Gallery struct {
	client api.Client
	ledger *Ledger
	notify Notifier
	log    logrus.FieldLogger

	mu            sync.Mutex
	stickers      []domain.Sticker
	current       *domain.Sticker
	inFlight      int
	uploading     bool
	generation    uint64
	total         int
	page          int
	size          int
	pages         int
	sort          domain.SortType
	search        string
	selectedTags  []string
	availableTags []string
	selected      []string
}

// New creates an empty gallery.
func New(client api.Client, ledger *Ledger, notify Notifier, opts Options, logger logrus.FieldLogger) *Gallery {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Sort == "" {
		opts.Sort = domain.SortCreatedAt
	}
	return &Gallery{
		client: client,
		ledger: ledger,
		notify: notify,
		log:    logger.WithField("component", "gallery"),
		page:   1,
		pages:  1,
		size:   opts.PageSize,
		sort:   opts.Sort,
	}
}

type fetchRequest struct {
	query    domain.Query
	gen      uint64
	reset    bool
	rollback bool
}

// beginLocked marks a fetch as in flight and snapshots its parameters.
func (g *Gallery) beginLocked(reset, rollback bool) fetchRequest {
	g.inFlight++
	return fetchRequest{
		query: domain.Query{
			Page:   g.page,
			Size:   g.size,
			SortBy: g.sort,
			Search: g.search,
			Tags:   slices.Clone(g.selectedTags),
		},
		gen:      g.generation,
		reset:    reset,
		rollback: rollback,
	}
}

func (g *Gallery) endFetch() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
}

// Fetch loads the current page. With reset, the page goes back to 1 and any
// response still in flight from before is discarded when it arrives.
func (g *Gallery) Fetch(ctx context.Context, reset bool) error {
	g.mu.Lock()
	if reset {
		g.page = 1
		g.generation++
	}
	req := g.beginLocked(reset, false)
	g.mu.Unlock()

	return g.run(ctx, req)
}

// LoadMore fetches the next page and appends its new stickers. It does
// nothing (ErrBusy, ErrNoMore) while a fetch is in flight or when the last
// page is already loaded.
func (g *Gallery) LoadMore(ctx context.Context) error {
	g.mu.Lock()
	if g.inFlight > 0 {
		g.mu.Unlock()
		return ErrBusy
	}
	if g.page >= g.pages {
		g.mu.Unlock()
		return ErrNoMore
	}
	g.page++
	req := g.beginLocked(false, true)
	g.mu.Unlock()

	return g.run(ctx, req)
}

func (g *Gallery) run(ctx context.Context, req fetchRequest) error {
	defer g.endFetch()

	log := g.log.WithFields(logrus.Fields{
		"page":  req.query.Page,
		"reset": req.reset,
	})

	page, err := g.client.ListStickers(ctx, req.query)

	g.mu.Lock()
	if err != nil {
		// Let the same page be requested again.
		if req.rollback && req.gen == g.generation && g.page == req.query.Page {
			g.page--
		}
		g.mu.Unlock()
		log.WithError(err).Error("Failed to fetch sticker list")
		g.notify.Error(fmt.Sprintf("Failed to fetch stickers: %v", err))
		return fmt.Errorf("failed to fetch stickers: %w", err)
	}
	if req.gen != g.generation {
		g.mu.Unlock()
		log.Debug("Discarding response superseded by a reset")
		return nil
	}

	if req.reset || req.query.Page == 1 {
		g.stickers = slices.Clone(page.Items)
	} else {
		g.stickers = appendUnique(g.stickers, page.Items)
	}
	g.total = page.Total
	g.pages = page.Pages
	count := len(g.stickers)
	g.mu.Unlock()

	log.WithFields(logrus.Fields{"received": len(page.Items), "held": count}).Debug("Sticker page merged")
	return nil
}

// appendUnique appends the incoming stickers whose id is not held yet, in
// the order received.
func appendUnique(held, incoming []domain.Sticker) []domain.Sticker {
	ids := make(map[string]struct{}, len(held)+len(incoming))
	for _, s := range held {
		ids[s.ID] = struct{}{}
	}
	for _, s := range incoming {
		if _, ok := ids[s.ID]; ok {
			continue
		}
		ids[s.ID] = struct{}{}
		held = append(held, s)
	}
	return held
}

// HasMore reports whether a further page exists.
func (g *Gallery) HasMore() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page < g.pages
}

// IsEmpty reports whether no sticker is held.
func (g *Gallery) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stickers) == 0
}

// IsLoading reports whether a list fetch is in flight.
func (g *Gallery) IsLoading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight > 0
}

// IsUploading reports whether an upload is in flight.
func (g *Gallery) IsUploading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploading
}

// Stickers returns a copy of the held collection.
func (g *Gallery) Stickers() []domain.Sticker {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.stickers)
}

// Find returns the held sticker with id.
func (g *Gallery) Find(id string) (domain.Sticker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.indexLocked(id)
	if i == -1 {
		return domain.Sticker{}, false
	}
	return g.stickers[i], true
}

// Current returns the sticker opened with FetchDetail, if any.
func (g *Gallery) Current() (domain.Sticker, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return domain.Sticker{}, false
	}
	return *g.current, true
}

// Pagination returns page, pages and total.
func (g *Gallery) Pagination() (page, pages, total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.page, g.pages, g.total
}

// Ledger exposes the reaction ledger.
func (g *Gallery) Ledger() *Ledger { return g.ledger }

func (g *Gallery) indexLocked(id string) int {
	return slices.IndexFunc(g.stickers, func(s domain.Sticker) bool { return s.ID == id })
}

// replaceLocked swaps in a fresh record wherever the sticker is held.
func (g *Gallery) replaceLocked(s domain.Sticker) {
	if s.ID == "" {
		return
	}
	if i := g.indexLocked(s.ID); i != -1 {
		g.stickers[i] = s
	}
	if g.current != nil && g.current.ID == s.ID {
		cp := s
		g.current = &cp
	}
}

// --- Filters ---

// SetSort changes the order and reloads from page 1 when it differs.
func (g *Gallery) SetSort(ctx context.Context, by domain.SortType) error {
	g.mu.Lock()
	if g.sort == by {
		g.mu.Unlock()
		return nil
	}
	g.sort = by
	g.mu.Unlock()
	return g.Fetch(ctx, true)
}

// SetSearch stores the search text for the next fetch.
func (g *Gallery) SetSearch(search string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.search = strings.TrimSpace(search)
}

// SetSelectedTags stores the tag filter for the next fetch.
func (g *Gallery) SetSelectedTags(tags []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selectedTags = domain.NormalizeTags(tags)
}

// ResetFilters clears search and tags and reloads from page 1.
func (g *Gallery) ResetFilters(ctx context.Context) error {
	g.mu.Lock()
	g.search = ""
	g.selectedTags = nil
	g.mu.Unlock()
	return g.Fetch(ctx, true)
}

// --- Detail, reactions, edits ---

// FetchDetail loads one sticker and makes it current.
func (g *Gallery) FetchDetail(ctx context.Context, id string) (*domain.Sticker, error) {
	s, err := g.client.GetSticker(ctx, id)
	if err != nil {
		g.log.WithError(err).WithField("sticker_id", id).Error("Failed to fetch sticker detail")
		g.notify.Error("Failed to fetch sticker detail")
		return nil, fmt.Errorf("failed to fetch sticker %s: %w", id, err)
	}
	g.mu.Lock()
	cp := *s
	g.current = &cp
	g.mu.Unlock()
	return s, nil
}

// Like toggles the like on id. The server answer decides whether the like
// was added or withdrawn.
func (g *Gallery) Like(ctx context.Context, id string) (*domain.ReactionResult, error) {
	return g.react(ctx, id, true)
}

// Dislike toggles the dislike on id.
func (g *Gallery) Dislike(ctx context.Context, id string) (*domain.ReactionResult, error) {
	return g.react(ctx, id, false)
}

func (g *Gallery) react(ctx context.Context, id string, like bool) (*domain.ReactionResult, error) {
	log := g.log.WithFields(logrus.Fields{"sticker_id": id, "like": like})

	call, cancelMsg := g.client.Dislike, dislikeCancelledMessage
	if like {
		call, cancelMsg = g.client.Like, likeCancelledMessage
	}
	res, err := call(ctx, id)
	if err != nil {
		log.WithError(err).Error("Reaction failed")
		g.notify.Error("Reaction failed, please try again later")
		return nil, fmt.Errorf("failed to react to sticker %s: %w", id, err)
	}

	g.mu.Lock()
	g.replaceLocked(res.Sticker)
	g.mu.Unlock()

	withdrawn := isWithdrawn(res, cancelMsg)
	switch {
	case like && withdrawn:
		g.ledger.UnmarkLiked(id)
	case like:
		g.ledger.MarkLiked(id)
	case withdrawn:
		g.ledger.UnmarkDisliked(id)
	default:
		g.ledger.MarkDisliked(id)
	}
	if err := g.ledger.Save(ctx); err != nil {
		log.WithError(err).Warn("Failed to persist reaction ledger")
	}

	msg := res.Message
	if msg == "" {
		msg = "Done"
	}
	if res.Success {
		g.notify.Success(msg)
	} else {
		g.notify.Error(msg)
	}
	return res, nil
}

// isWithdrawn reports whether the server removed the reaction instead of
// adding it.
func isWithdrawn(res *domain.ReactionResult, cancelMsg string) bool {
	if res.Action != nil {
		switch strings.ToLower(*res.Action) {
		case "cancel", "canceled", "cancelled", "remove", "removed":
			return true
		}
	}
	return res.Message == cancelMsg
}

// UpdateDescription edits the description and replaces the held record.
func (g *Gallery) UpdateDescription(ctx context.Context, id, description string) (*domain.Sticker, error) {
	s, err := g.client.UpdateDescription(ctx, id, description)
	if err != nil {
		g.log.WithError(err).WithField("sticker_id", id).Error("Failed to update sticker description")
		g.notify.Error("Update failed")
		return nil, fmt.Errorf("failed to update description of %s: %w", id, err)
	}
	s.Description = description
	if s.ID == "" {
		s.ID = id
	}
	g.mu.Lock()
	g.replaceLocked(*s)
	g.mu.Unlock()
	g.notify.Success("Description updated")
	return s, nil
}

// UpdateTags replaces the tag set and the held record.
func (g *Gallery) UpdateTags(ctx context.Context, id string, tags []string) (*domain.Sticker, error) {
	tags = domain.NormalizeTags(tags)
	s, err := g.client.UpdateTags(ctx, id, tags)
	if err != nil {
		g.log.WithError(err).WithField("sticker_id", id).Error("Failed to update sticker tags")
		g.notify.Error("Failed to update tags")
		return nil, fmt.Errorf("failed to update tags of %s: %w", id, err)
	}
	s.Tags = slices.Clone(tags)
	if s.ID == "" {
		s.ID = id
	}
	g.mu.Lock()
	g.replaceLocked(*s)
	g.mu.Unlock()
	g.notify.Success("Tags updated")
	return s, nil
}

// Upload sends a new sticker. It reports whether the backend accepted it.
func (g *Gallery) Upload(ctx context.Context, fileName string, file io.Reader, content string, tags []string) (bool, error) {
	g.mu.Lock()
	g.uploading = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.uploading = false
		g.mu.Unlock()
	}()

	res, err := g.client.Upload(ctx, api.UploadRequest{
		FileName: fileName,
		File:     file,
		Content:  content,
		Tags:     tags,
	})
	if err != nil {
		g.log.WithError(err).WithField("file", fileName).Error("Failed to upload sticker")
		g.notify.Error("Upload failed")
		return false, fmt.Errorf("failed to upload %s: %w", fileName, err)
	}

	msg := res.Message
	if res.Success {
		if msg == "" {
			msg = "Upload succeeded"
		}
		g.notify.Success(msg)
	} else {
		if msg == "" {
			msg = "Upload rejected"
		}
		g.notify.Error(msg)
	}
	return res.Success, nil
}

// Delete removes a sticker on the server and, on success, locally.
func (g *Gallery) Delete(ctx context.Context, id string) error {
	res, err := g.client.DeleteSticker(ctx, id)
	if err != nil {
		g.log.WithError(err).WithField("sticker_id", id).Error("Failed to delete sticker")
		g.notify.Error("Delete failed")
		return fmt.Errorf("failed to delete sticker %s: %w", id, err)
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "Delete rejected"
		}
		g.notify.Error(msg)
		return nil
	}

	g.mu.Lock()
	if i := g.indexLocked(id); i != -1 {
		g.stickers = slices.Delete(g.stickers, i, i+1)
		if g.total > 0 {
			g.total--
		}
	}
	g.selected = remove(g.selected, id)
	if g.current != nil && g.current.ID == id {
		g.current = nil
	}
	g.mu.Unlock()

	msg := res.Message
	if msg == "" {
		msg = "Deleted"
	}
	g.notify.Success(msg)
	return nil
}

// FetchPopularTags loads the popular tags and stores their names sorted.
func (g *Gallery) FetchPopularTags(ctx context.Context) ([]string, error) {
	hot, err := g.client.PopularTags(ctx)
	if err != nil {
		g.log.WithError(err).Error("Failed to fetch tags")
		g.notify.Error("Failed to fetch tags")
		return nil, fmt.Errorf("failed to fetch popular tags: %w", err)
	}
	names := make([]string, 0, len(hot))
	for _, t := range hot {
		names = append(names, t.Tag)
	}
	sort.Strings(names)

	g.mu.Lock()
	g.availableTags = names
	g.mu.Unlock()
	return slices.Clone(names), nil
}

// AvailableTags returns the tags from the last FetchPopularTags.
func (g *Gallery) AvailableTags() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.availableTags)
}

// --- Selection ---

// ToggleSelected flips the selection of id and reports whether it is now
// selected.
func (g *Gallery) ToggleSelected(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if slices.Contains(g.selected, id) {
		g.selected = remove(g.selected, id)
		return false
	}
	g.selected = append(g.selected, id)
	return true
}

// ClearSelected empties the selection.
func (g *Gallery) ClearSelected() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selected = nil
}

// SelectedIDs returns the selected ids in selection order.
func (g *Gallery) SelectedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.selected)
}

// Selected returns the held stickers that are selected, in collection order.
func (g *Gallery) Selected() []domain.Sticker {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Sticker, 0, len(g.selected))
	for _, s := range g.stickers {
		if slices.Contains(g.selected, s.ID) {
			out = append(out, s)
		}
	}
	return out
}
