package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorogallery/internal/domain"
)

func TestCircuitBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/stickers/tags/popular/", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c := NewCircuitBreakerClient(newTestAPI(t, r), BreakerSettings{MaxFailures: 2, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.PopularTags(ctx)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.PopularTags(ctx)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the server")
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/stickers/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "gone"})
	})
	c := NewCircuitBreakerClient(newTestAPI(t, r), BreakerSettings{MaxFailures: 1, Timeout: time.Minute}, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := c.GetSticker(context.Background(), "x")
		require.ErrorIs(t, err, ErrStatus)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestCircuitBreaker_PassesResults(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/stickers", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, domain.Page[domain.Sticker]{Items: []domain.Sticker{{ID: "a"}}, Page: 1, Pages: 1, Total: 1})
	})
	c := NewCircuitBreakerClient(newTestAPI(t, r), BreakerSettings{}, quietLogger())

	page, err := c.ListStickers(context.Background(), domain.Query{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)
}

func TestCircuitBreaker_OversizedBodiesDoNotTrip(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/stickers/tags/popular/", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`[{"tag":"a","count":1}]`))
	})
	api := newTestAPI(t, r)
	api.maxBody = 4
	c := NewCircuitBreakerClient(api, BreakerSettings{MaxFailures: 1, Timeout: time.Minute}, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := c.PopularTags(context.Background())
		require.ErrorIs(t, err, ErrTooLarge)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}
