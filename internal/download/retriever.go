// Package download resolves sticker image assets and packages them for saving.
//
// Every sticker is resolved in two steps: the content-addressed direct path
// /images/{md5}.{ext} first, then the server-side proxy relay that fetches the
// original display URL. A sticker whose two steps both miss is dropped from a
// batch but reported as an error by the single-item variant.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"dorogallery/internal/domain"
)

// defaultMaxAssetSize bounds a single downloaded image.
const defaultMaxAssetSize = 64 << 20

var (
	// ErrEmptyBody is a 2xx answer without content; it counts as a miss.
	ErrEmptyBody = errors.New("empty response body")
	// ErrBadStatus is a non-2xx answer.
	ErrBadStatus = errors.New("unexpected status")
	// ErrTooLarge is a body over the size limit; it counts as a miss.
	ErrTooLarge = errors.New("asset exceeds size limit")
	// ErrNotFound means neither the direct nor the proxy path produced the asset.
	ErrNotFound = errors.New("asset not retrievable")
)

// Source tells which path produced an asset.
type Source string

const (
	// SourceDirect is the content-addressed /images path.
	SourceDirect Source = "direct"
	// SourceProxy is the relay fetching the original display URL.
	SourceProxy Source = "proxy"
)

// State is the terminal state of one resolution.
type State int

const (
	// StatePending means resolution has not finished.
	StatePending State = iota
	// StateResolved means Data holds the asset.
	StateResolved
	// StateFailed means both paths missed; Err says why.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	}
	return "pending"
}

// Result is the outcome of resolving one sticker: either Data from Source,
// or Err explaining why both paths missed.
type Result struct {
	Sticker domain.Sticker
	Name    string
	State   State
	Source  Source
	Data    []byte
	Err     error
}

// Asset is a resolved image ready to be saved.
type Asset struct {
	Name   string
	Data   []byte
	Source Source
}

// Options configures a Retriever.
type Options struct {
	// AssetBaseURL is the origin serving /images and the proxy.
	AssetBaseURL string
	// ProxyPath is the relay endpoint, e.g. /v2/proxy-image.
	ProxyPath string
	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client
	// Concurrency caps in-flight resolutions; 0 means unbounded.
	Concurrency int
	// Rate limits outbound requests per second; 0 means unlimited.
	Rate float64
	// MaxAssetSize rejects larger bodies; 0 means 64 MiB.
	MaxAssetSize int64
}

// Retriever fetches sticker assets via the direct path with proxy fallback.
type Retriever struct {
	assetBase string
	proxyPath string
	http      *http.Client
	limit     int
	maxSize   int64
	limiter   *rate.Limiter
	log       logrus.FieldLogger
}

// NewRetriever creates a Retriever.
func NewRetriever(opts Options, logger logrus.FieldLogger) *Retriever {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	proxyPath := opts.ProxyPath
	if proxyPath == "" {
		proxyPath = "/v2/proxy-image"
	}
	maxSize := opts.MaxAssetSize
	if maxSize <= 0 {
		maxSize = defaultMaxAssetSize
	}
	limit := rate.Inf
	burst := 1
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		burst = int(opts.Rate)
		if burst < 1 {
			burst = 1
		}
	}
	return &Retriever{
		assetBase: strings.TrimRight(opts.AssetBaseURL, "/"),
		proxyPath: "/" + strings.TrimLeft(proxyPath, "/"),
		http:      client,
		limit:     opts.Concurrency,
		maxSize:   maxSize,
		limiter:   rate.NewLimiter(limit, burst),
		log:       logger.WithField("component", "retriever"),
	}
}

// DirectURL is the content-addressed location of the sticker image.
func (r *Retriever) DirectURL(s domain.Sticker) string {
	return fmt.Sprintf("%s/images/%s.%s", r.assetBase, url.PathEscape(s.MD5), domain.Extension(s.URL))
}

// ProxyURL asks the relay to fetch the original display URL.
func (r *Retriever) ProxyURL(s domain.Sticker) string {
	return r.assetBase + r.proxyPath + "?url=" + url.QueryEscape(s.URL)
}

// fetch GETs u and returns a non-empty body, or an error for any miss.
func (r *Retriever) fetch(ctx context.Context, u string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: http %d", ErrBadStatus, resp.StatusCode)
	}
	// One byte past the limit tells a full-size body from a cut one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > r.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, r.maxSize)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// Resolve runs the direct-then-proxy chain for one sticker. It never panics
// on a miss; the outcome is carried in the Result.
func (r *Retriever) Resolve(ctx context.Context, s domain.Sticker) Result {
	res := Result{Sticker: s, Name: domain.AssetName(s), State: StatePending}
	log := r.log.WithFields(logrus.Fields{
		"sticker_id": s.ID,
		"md5":        s.MD5,
	})

	if s.MD5 != "" {
		data, err := r.fetch(ctx, r.DirectURL(s))
		if err == nil {
			res.State, res.Source, res.Data = StateResolved, SourceDirect, data
			log.Debug("Direct asset hit")
			return res
		}
		log.WithError(err).Warn("Direct asset download failed, trying proxy")
	}

	if s.URL == "" {
		res.State = StateFailed
		res.Err = fmt.Errorf("%w: sticker %s has neither md5 nor url", ErrNotFound, s.ID)
		return res
	}

	data, err := r.fetch(ctx, r.ProxyURL(s))
	if err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("%w: proxy download failed for sticker %s: %v", ErrNotFound, s.ID, err)
		return res
	}
	res.State, res.Source, res.Data = StateResolved, SourceProxy, data
	log.Debug("Proxy asset hit")
	return res
}

// RetrieveOne resolves a single sticker and fails when both paths miss.
func (r *Retriever) RetrieveOne(ctx context.Context, s domain.Sticker) (*Asset, error) {
	res := r.Resolve(ctx, s)
	if res.State != StateResolved {
		r.log.WithError(res.Err).WithField("sticker_id", s.ID).Error("Failed to download sticker")
		return nil, res.Err
	}
	return &Asset{Name: res.Name, Data: res.Data, Source: res.Source}, nil
}

// ResolveAll resolves every sticker concurrently and waits for all of them.
// Results are in input order; a failed item never affects its siblings.
func (r *Retriever) ResolveAll(ctx context.Context, items []domain.Sticker) []Result {
	results := make([]Result, len(items))
	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, s := range items {
		g.Go(func() error {
			results[i] = r.Resolve(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// BuildArchive packs the resolved results. Failures are logged and skipped.
func (r *Retriever) BuildArchive(results []Result) *Archive {
	archive := NewArchive()
	for _, res := range results {
		if res.State != StateResolved {
			r.log.WithError(res.Err).WithField("sticker_id", res.Sticker.ID).Error("Failed to download sticker, leaving it out of the archive")
			continue
		}
		if err := archive.Add(res.Name, res.Data); err != nil {
			r.log.WithError(err).WithField("name", res.Name).Warn("Skipping archive entry")
		}
	}
	return archive
}

// Batch is the outcome of RetrieveAll.
type Batch struct {
	// Archive holds every resolved asset.
	Archive *Archive
	// Results has one entry per requested sticker, in input order.
	Results []Result
}

// Failed returns the ids of the stickers left out of the archive.
func (b *Batch) Failed() []string {
	var ids []string
	for _, res := range b.Results {
		if res.State != StateResolved {
			ids = append(ids, res.Sticker.ID)
		}
	}
	return ids
}

// RetrieveAll resolves items concurrently and returns the archive of every
// success along with the per-item results. It only fails if ctx was cancelled.
func (r *Retriever) RetrieveAll(ctx context.Context, items []domain.Sticker) (*Batch, error) {
	results := r.ResolveAll(ctx, items)
	batch := &Batch{Archive: r.BuildArchive(results), Results: results}
	if err := ctx.Err(); err != nil {
		return batch, err
	}
	r.log.WithFields(logrus.Fields{
		"requested": len(items),
		"archived":  batch.Archive.Len(),
	}).Info("Batch retrieval finished")
	return batch, nil
}
