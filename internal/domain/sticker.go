package domain

import (
	"strings"
)

// Sticker represents a single image record served by the gallery backend.
type Sticker struct {
	// ID is the opaque identifier assigned by the backend.
	ID string `json:"id"`

	// Description is the free-text caption attached to the sticker.
	Description string `json:"description"`

	// URL is the display URL of the image.
	URL string `json:"url"`

	// MD5 is the content hash, used as the key for direct asset lookup.
	MD5 string `json:"md5"`

	// FileSize is the size of the image in bytes.
	FileSize int64 `json:"file_size"`

	// Width and Height are the pixel dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Likes and Dislikes are the server-side reaction counters.
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`

	// Tags is the unordered, unique tag set.
	Tags []string `json:"tags"`

	// CreatedAt and UpdatedAt are kept as the backend sends them.
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// SortType is the listing order understood by the backend.
type SortType string

const (
	SortCreatedAt SortType = "created_at"
	SortLikes     SortType = "likes"
	SortDislikes  SortType = "dislikes"
)

// ParseSortType returns the sort type named by s.
func ParseSortType(s string) (SortType, bool) {
	switch SortType(strings.ToLower(strings.TrimSpace(s))) {
	case SortCreatedAt:
		return SortCreatedAt, true
	case SortLikes:
		return SortLikes, true
	case SortDislikes:
		return SortDislikes, true
	}
	return "", false
}

// Query holds the listing parameters.
type Query struct {
	Page   int
	Size   int
	SortBy SortType
	Search string
	Tags   []string
}

// HotTag is a tag together with its usage count.
type HotTag struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ReactionResult is returned by the like and dislike endpoints.
type ReactionResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Sticker Sticker `json:"sticker"`
	Action  *string `json:"action"`
}

// OperationResult is the generic {success, message} answer of mutating endpoints.
type OperationResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Sticker *Sticker `json:"sticker,omitempty"`
}
