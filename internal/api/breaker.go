package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"

	"dorogallery/internal/domain"
)

// BreakerSettings configures CircuitBreakerClient.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive transport failures that opens
	// the circuit. Zero disables tripping.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
}

// CircuitBreakerClient wraps a Client so that a backend that keeps failing
// is not hammered by every list, reaction and edit call.
type CircuitBreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[any]
	log  logrus.FieldLogger
}

// NewCircuitBreakerClient decorates next.
func NewCircuitBreakerClient(next Client, settings BreakerSettings, logger logrus.FieldLogger) *CircuitBreakerClient {
	log := logger.WithField("component", "api_breaker")
	maxFailures := settings.MaxFailures

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "sticker-api",
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if maxFailures == 0 {
				return false
			}
			return counts.ConsecutiveFailures >= maxFailures
		},
		// 4xx answers, backend envelopes and oversized bodies mean the server is reachable.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrAPI) || errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state transition")
		},
	})

	return &CircuitBreakerClient{next: next, cb: cb, log: log}
}

// State reports the current breaker state.
func (b *CircuitBreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *CircuitBreakerClient, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("sticker api unavailable: %w", err)
		}
		return zero, err
	}
	return v.(T), nil
}

// ListStickers calls ListStickers on the wrapped client through the breaker.
func (b *CircuitBreakerClient) ListStickers(ctx context.Context, q domain.Query) (*domain.Page[domain.Sticker], error) {
	return execute(b, func() (*domain.Page[domain.Sticker], error) { return b.next.ListStickers(ctx, q) })
}

// GetSticker calls GetSticker on the wrapped client through the breaker.
func (b *CircuitBreakerClient) GetSticker(ctx context.Context, id string) (*domain.Sticker, error) {
	return execute(b, func() (*domain.Sticker, error) { return b.next.GetSticker(ctx, id) })
}

// Like calls Like on the wrapped client through the breaker.
func (b *CircuitBreakerClient) Like(ctx context.Context, id string) (*domain.ReactionResult, error) {
	return execute(b, func() (*domain.ReactionResult, error) { return b.next.Like(ctx, id) })
}

// Dislike calls Dislike on the wrapped client through the breaker.
func (b *CircuitBreakerClient) Dislike(ctx context.Context, id string) (*domain.ReactionResult, error) {
	return execute(b, func() (*domain.ReactionResult, error) { return b.next.Dislike(ctx, id) })
}

// Upload calls Upload on the wrapped client through the breaker.
func (b *CircuitBreakerClient) Upload(ctx context.Context, req UploadRequest) (*domain.OperationResult, error) {
	return execute(b, func() (*domain.OperationResult, error) { return b.next.Upload(ctx, req) })
}

// UpdateDescription calls UpdateDescription on the wrapped client through the breaker.
func (b *CircuitBreakerClient) UpdateDescription(ctx context.Context, id, description string) (*domain.Sticker, error) {
	return execute(b, func() (*domain.Sticker, error) { return b.next.UpdateDescription(ctx, id, description) })
}

// UpdateTags calls UpdateTags on the wrapped client through the breaker.
func (b *CircuitBreakerClient) UpdateTags(ctx context.Context, id string, tags []string) (*domain.Sticker, error) {
	return execute(b, func() (*domain.Sticker, error) { return b.next.UpdateTags(ctx, id, tags) })
}

// DeleteSticker calls DeleteSticker on the wrapped client through the breaker.
func (b *CircuitBreakerClient) DeleteSticker(ctx context.Context, id string) (*domain.OperationResult, error) {
	return execute(b, func() (*domain.OperationResult, error) { return b.next.DeleteSticker(ctx, id) })
}

// PopularTags calls PopularTags on the wrapped client through the breaker.
func (b *CircuitBreakerClient) PopularTags(ctx context.Context) ([]domain.HotTag, error) {
	return execute(b, func() ([]domain.HotTag, error) { return b.next.PopularTags(ctx) })
}

var _ Client = (*CircuitBreakerClient)(nil)
var _ Client = (*HTTPClient)(nil)
