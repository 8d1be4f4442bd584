package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"dorogallery/internal/api"
	"dorogallery/internal/config"
	"dorogallery/internal/domain"
	"dorogallery/internal/download"
	"dorogallery/internal/gallery"
	"dorogallery/internal/storage"
)

// commandFunc runs one chat command and returns the reply ("" for none).
type commandFunc func(ctx context.Context, s sender, chatID int64, args []string) string

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot       *tgbot.Bot
	cfg       config.Config
	client    api.Client
	repo      storage.LedgerRepository
	retriever *download.Retriever
	log       logrus.FieldLogger

	commands map[string]commandFunc

	mu       sync.Mutex
	sessions map[int64]*gallery.Gallery

	// running counts commands still being handled.
	running sync.WaitGroup
}

// NewHandler creates a new bot handler instance.
func NewHandler(cfg config.Config, client api.Client, repo storage.LedgerRepository, retriever *download.Retriever, logger logrus.FieldLogger) (*Handler, error) {
	h := newHandler(cfg, client, repo, retriever, logger)

	b, err := tgbot.New(cfg.TelegramBotToken, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		h.log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.log.Info("Telegram bot handler initialized")
	return h, nil
}

func newHandler(cfg config.Config, client api.Client, repo storage.LedgerRepository, retriever *download.Retriever, logger logrus.FieldLogger) *Handler {
	h := &Handler{
		cfg:       cfg,
		client:    client,
		repo:      repo,
		retriever: retriever,
		log:       logger.WithField("component", "bot_handler"),
		sessions:  make(map[int64]*gallery.Gallery),
	}
	h.commands = map[string]commandFunc{
		"/help":     h.cmdHelp,
		"/list":     h.cmdList,
		"/more":     h.cmdMore,
		"/sort":     h.cmdSort,
		"/tags":     h.cmdTags,
		"/tag":      h.cmdTag,
		"/like":     h.cmdLike,
		"/dislike":  h.cmdDislike,
		"/select":   h.cmdSelect,
		"/download": h.cmdDownload,
	}
	return h
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled and every command
// already being handled has finished, so the ledger store can be closed
// once it returns.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.wait()
	h.log.Info("Telegram bot polling stopped.")
}

// wait blocks until no command is in progress.
func (h *Handler) wait() {
	h.running.Wait()
}

// startHandler handles the /start command.
func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"chat_id": update.Message.Chat.ID,
		"command": "/start",
	})
	log.Info("Received /start command")

	h.reply(ctx, b, update.Message.Chat.ID, "Welcome! "+helpText)
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	h.handleText(ctx, b, update.Message.Chat.ID, update.Message.Text)
}

// handleText routes a chat message to its command.
func (h *Handler) handleText(ctx context.Context, s sender, chatID int64, text string) {
	h.running.Add(1)
	defer h.running.Done()

	cmd, args, ok := parseCommand(text)
	log := h.log.WithField("chat_id", chatID)
	if !ok {
		log.WithField("text", text).Debug("Received unhandled message (default handler)")
		return
	}
	fn, found := h.commands[cmd]
	if !found {
		log.WithField("command", cmd).Debug("Unknown command")
		h.reply(ctx, s, chatID, helpText)
		return
	}

	log.WithFields(logrus.Fields{"command": cmd, "args": len(args)}).Info("Received command")
	if out := fn(ctx, s, chatID, args); out != "" {
		h.reply(ctx, s, chatID, out)
	}
}

func (h *Handler) reply(ctx context.Context, s sender, chatID int64, text string) {
	if _, err := s.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

// session returns the chat's gallery, creating it and loading the chat's
// reaction ledger on first use.
func (h *Handler) session(ctx context.Context, s sender, chatID int64) *gallery.Gallery {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.sessions[chatID]; ok {
		return g
	}

	log := h.log.WithField("chat_id", chatID)
	ledger := gallery.NewLedger(h.repo, fmt.Sprintf("chat:%d", chatID), log)
	if err := ledger.Load(ctx); err != nil {
		log.WithError(err).Warn("Starting with an empty reaction ledger")
	}
	sort, ok := domain.ParseSortType(h.cfg.SortBy)
	if !ok {
		sort = domain.SortCreatedAt
	}
	notify := &chatNotifier{send: s, chatID: chatID, log: log}
	g := gallery.New(h.client, ledger, notify, gallery.Options{PageSize: h.cfg.PageSize, Sort: sort}, log)
	h.sessions[chatID] = g
	return g
}

func (h *Handler) pageReply(g *gallery.Gallery, items []domain.Sticker) string {
	page, pages, total := g.Pagination()
	return formatPage(items, g.Ledger(), page, pages, total)
}

func (h *Handler) cmdHelp(context.Context, sender, int64, []string) string {
	return helpText
}

func (h *Handler) cmdList(ctx context.Context, s sender, chatID int64, args []string) string {
	g := h.session(ctx, s, chatID)
	g.SetSearch(strings.Join(args, " "))
	if err := g.Fetch(ctx, true); err != nil {
		return ""
	}
	return h.pageReply(g, g.Stickers())
}

func (h *Handler) cmdMore(ctx context.Context, s sender, chatID int64, _ []string) string {
	g := h.session(ctx, s, chatID)
	if g.IsEmpty() {
		return "Nothing listed yet, start with /list."
	}
	before := len(g.Stickers())
	err := g.LoadMore(ctx)
	switch {
	case errors.Is(err, gallery.ErrBusy):
		return "Still loading, try again in a moment."
	case errors.Is(err, gallery.ErrNoMore):
		return "That's all of them."
	case err != nil:
		return ""
	}
	items := g.Stickers()
	if before > len(items) {
		before = 0
	}
	return h.pageReply(g, items[before:])
}

func (h *Handler) cmdSort(ctx context.Context, s sender, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /sort created_at|likes|dislikes"
	}
	sort, ok := domain.ParseSortType(args[0])
	if !ok {
		return fmt.Sprintf("Unknown order %q. Use created_at, likes or dislikes.", args[0])
	}
	g := h.session(ctx, s, chatID)
	if err := g.SetSort(ctx, sort); err != nil {
		return ""
	}
	return fmt.Sprintf("Sorted by %s.\n%s", sort, h.pageReply(g, g.Stickers()))
}

func (h *Handler) cmdTags(ctx context.Context, s sender, chatID int64, _ []string) string {
	tags, err := h.session(ctx, s, chatID).FetchPopularTags(ctx)
	if err != nil {
		return ""
	}
	if len(tags) == 0 {
		return "No tags yet."
	}
	return "Popular tags: " + strings.Join(tags, ", ")
}

func (h *Handler) cmdTag(ctx context.Context, s sender, chatID int64, args []string) string {
	g := h.session(ctx, s, chatID)
	g.SetSelectedTags(parseTags(args))
	if err := g.Fetch(ctx, true); err != nil {
		return ""
	}
	return h.pageReply(g, g.Stickers())
}

func (h *Handler) cmdLike(ctx context.Context, s sender, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /like <id>"
	}
	// The gallery reports the outcome through the chat notifier.
	_, _ = h.session(ctx, s, chatID).Like(ctx, args[0])
	return ""
}

func (h *Handler) cmdDislike(ctx context.Context, s sender, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /dislike <id>"
	}
	_, _ = h.session(ctx, s, chatID).Dislike(ctx, args[0])
	return ""
}

func (h *Handler) cmdSelect(ctx context.Context, s sender, chatID int64, args []string) string {
	g := h.session(ctx, s, chatID)
	if len(args) == 0 {
		ids := g.SelectedIDs()
		if len(ids) == 0 {
			return "Nothing selected."
		}
		return "Selected: " + strings.Join(ids, ", ")
	}
	for _, id := range args {
		g.ToggleSelected(id)
	}
	return fmt.Sprintf("%d sticker(s) selected.", len(g.SelectedIDs()))
}

func (h *Handler) cmdDownload(ctx context.Context, s sender, chatID int64, args []string) string {
	g := h.session(ctx, s, chatID)
	log := h.log.WithField("chat_id", chatID)

	var items []domain.Sticker
	if len(args) > 0 {
		for _, id := range args {
			if st, ok := g.Find(id); ok {
				items = append(items, st)
				continue
			}
			st, err := h.client.GetSticker(ctx, id)
			if err != nil {
				log.WithError(err).WithField("sticker_id", id).Warn("Skipping sticker that could not be fetched")
				continue
			}
			items = append(items, *st)
		}
	} else {
		items = g.Selected()
	}
	if len(items) == 0 {
		return "Nothing to download. Use /select <id> or /download <id>..."
	}

	d := download.NewDownloader(h.retriever, NewTelegramSaver(s, chatID, log), log)
	report, err := d.DownloadBatch(ctx, items)
	if err != nil {
		return "⚠️ Download failed, please try again later."
	}
	msg := fmt.Sprintf("Archived %d of %d sticker(s) into %s.", report.Archived, report.Requested, report.Name)
	if len(report.Failed) > 0 {
		msg += " Not retrievable: " + strings.Join(report.Failed, ", ")
	}
	return msg
}
