package bot

import (
	"fmt"
	"strings"
	"unicode"

	"dorogallery/internal/domain"
	"dorogallery/internal/gallery"
)

const helpText = `Doro sticker gallery.

/list [search] - first page, optionally filtered by text
/more - next page
/sort created_at|likes|dislikes - change order
/tags - popular tags
/tag t1,t2 - filter by tags (no tags clears the filter)
/like <id>, /dislike <id> - toggle a reaction
/select <id> - add or remove a sticker from the selection
/download [id...] - zip the given or selected stickers`

// parseCommand splits "/cmd@botname arg1 arg2" into "/cmd" and its args.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd), fields[1:], true
}

// parseTags accepts tags separated by commas, spaces or both.
func parseTags(args []string) []string {
	joined := strings.Join(args, " ")
	parts := strings.FieldsFunc(joined, func(r rune) bool {
		return r == ',' || r == '，' || unicode.IsSpace(r)
	})
	return domain.NormalizeTags(parts)
}

func formatSticker(s domain.Sticker, l *gallery.Ledger) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%s", s.ID)
	if s.Description != "" {
		fmt.Fprintf(&b, " %s", s.Description)
	}
	like, dislike := "👍", "👎"
	if l != nil && l.HasLiked(s.ID) {
		like = "❤️"
	}
	if l != nil && l.HasDisliked(s.ID) {
		dislike = "💔"
	}
	fmt.Fprintf(&b, " | %s %d %s %d", like, s.Likes, dislike, s.Dislikes)
	if s.FileSize > 0 {
		fmt.Fprintf(&b, " | %s", domain.FormatFileSize(s.FileSize))
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(&b, " | %s", strings.Join(s.Tags, ", "))
	}
	return b.String()
}

// formatPage renders stickers with a page footer.
func formatPage(items []domain.Sticker, l *gallery.Ledger, page, pages, total int) string {
	if len(items) == 0 {
		return "No stickers found."
	}
	lines := make([]string, 0, len(items)+1)
	for _, s := range items {
		lines = append(lines, formatSticker(s, l))
	}
	footer := fmt.Sprintf("Page %d/%d, %d stickers.", page, max(pages, 1), total)
	if page < pages {
		footer += " /more for the next page."
	}
	lines = append(lines, footer)
	return strings.Join(lines, "\n")
}
