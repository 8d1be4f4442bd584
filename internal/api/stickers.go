package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"dorogallery/internal/domain"
)

// EncodeQuery serializes listing parameters. Tags are sent as repeated
// "tags" keys, one per tag, which is what the backend parses.
func EncodeQuery(q domain.Query) string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("size", strconv.Itoa(q.Size))
	if q.SortBy != "" {
		v.Set("sort_by", string(q.SortBy))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	for _, tag := range q.Tags {
		v.Add("tags", tag)
	}
	return v.Encode()
}

func stickerPath(id string, suffix string) string {
	return "/stickers/" + url.PathEscape(id) + suffix
}

// ListStickers fetches one page of stickers.
func (c *HTTPClient) ListStickers(ctx context.Context, q domain.Query) (*domain.Page[domain.Sticker], error) {
	var page domain.Page[domain.Sticker]
	r := &request{method: http.MethodGet, path: "/stickers?" + EncodeQuery(q)}
	if err := c.do(ctx, r, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []domain.Sticker{}
	}
	return &page, nil
}

// GetSticker fetches a single sticker.
func (c *HTTPClient) GetSticker(ctx context.Context, id string) (*domain.Sticker, error) {
	var s domain.Sticker
	if err := c.do(ctx, &request{method: http.MethodGet, path: stickerPath(id, "")}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Like toggles the like reaction on the server.
func (c *HTTPClient) Like(ctx context.Context, id string) (*domain.ReactionResult, error) {
	return c.react(ctx, id, "/like")
}

// Dislike toggles the dislike reaction on the server.
func (c *HTTPClient) Dislike(ctx context.Context, id string) (*domain.ReactionResult, error) {
	return c.react(ctx, id, "/dislike")
}

func (c *HTTPClient) react(ctx context.Context, id, suffix string) (*domain.ReactionResult, error) {
	var res domain.ReactionResult
	if err := c.do(ctx, &request{method: http.MethodPost, path: stickerPath(id, suffix)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Upload sends a new sticker as multipart/form-data: the binary under "file",
// the text under "content" and one "tags" field per tag.
func (c *HTTPClient) Upload(ctx context.Context, up UploadRequest) (*domain.OperationResult, error) {
	if up.File == nil {
		return nil, fmt.Errorf("upload: no file given")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := up.FileName
	if name == "" {
		name = "sticker"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, up.File); err != nil {
		return nil, fmt.Errorf("failed to read upload file: %w", err)
	}
	if err := mw.WriteField("content", up.Content); err != nil {
		return nil, fmt.Errorf("failed to write content field: %w", err)
	}
	for _, tag := range domain.NormalizeTags(up.Tags) {
		if err := mw.WriteField("tags", tag); err != nil {
			return nil, fmt.Errorf("failed to write tag field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var res domain.OperationResult
	r := &request{
		method:      http.MethodPost,
		path:        "/stickers/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}
	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateDescription replaces the sticker description.
func (c *HTTPClient) UpdateDescription(ctx context.Context, id, description string) (*domain.Sticker, error) {
	r, err := jsonRequest(http.MethodPatch, stickerPath(id, "/description"), map[string]string{"description": description})
	if err != nil {
		return nil, err
	}
	var s domain.Sticker
	if err := c.do(ctx, r, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateTags replaces the sticker tag set.
func (c *HTTPClient) UpdateTags(ctx context.Context, id string, tags []string) (*domain.Sticker, error) {
	r, err := jsonRequest(http.MethodPost, stickerPath(id, "/tags"), map[string][]string{"tags": domain.NormalizeTags(tags)})
	if err != nil {
		return nil, err
	}
	var s domain.Sticker
	if err := c.do(ctx, r, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSticker removes a sticker.
func (c *HTTPClient) DeleteSticker(ctx context.Context, id string) (*domain.OperationResult, error) {
	var res domain.OperationResult
	if err := c.do(ctx, &request{method: http.MethodDelete, path: stickerPath(id, "")}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PopularTags lists tags with their usage counts.
func (c *HTTPClient) PopularTags(ctx context.Context) ([]domain.HotTag, error) {
	var tags []domain.HotTag
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/stickers/tags/popular/"}, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
