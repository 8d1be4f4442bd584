package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dorogallery/internal/domain"
)

var (
	// ErrStatus marks a non-2xx HTTP response.
	ErrStatus = errors.New("unexpected status")
	// ErrAPI marks a response envelope whose code is not 200.
	ErrAPI = errors.New("api error")
	// ErrTooLarge marks a response body over the read limit.
	ErrTooLarge = errors.New("response exceeds size limit")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// APIError is returned when the backend answers {"code": != 200, "message": ...}.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// UploadRequest is the multipart payload of an upload.
type UploadRequest struct {
	FileName string
	File     io.Reader
	Content  string
	Tags     []string
}

// Client is the sticker backend.
type Client interface {
	ListStickers(ctx context.Context, q domain.Query) (*domain.Page[domain.Sticker], error)
	GetSticker(ctx context.Context, id string) (*domain.Sticker, error)
	Like(ctx context.Context, id string) (*domain.ReactionResult, error)
	Dislike(ctx context.Context, id string) (*domain.ReactionResult, error)
	Upload(ctx context.Context, req UploadRequest) (*domain.OperationResult, error)
	UpdateDescription(ctx context.Context, id, description string) (*domain.Sticker, error)
	UpdateTags(ctx context.Context, id string, tags []string) (*domain.Sticker, error)
	DeleteSticker(ctx context.Context, id string) (*domain.OperationResult, error)
	PopularTags(ctx context.Context) ([]domain.HotTag, error)
}
