package bot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
)

// notifyTimeout bounds a single notification message.
const notifyTimeout = 10 * time.Second

// sender is the part of *tgbot.Bot the chat side needs.
type sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *tgbot.SendDocumentParams) (*models.Message, error)
}

// TelegramSaver delivers files to a chat as documents.
type TelegramSaver struct {
	send   sender
	chatID int64
	log    logrus.FieldLogger
}

// NewTelegramSaver creates a saver that uploads into chatID.
func NewTelegramSaver(s sender, chatID int64, logger logrus.FieldLogger) *TelegramSaver {
	return &TelegramSaver{
		send:   s,
		chatID: chatID,
		log:    logger.WithFields(logrus.Fields{"component": "telegram_saver", "chat_id": chatID}),
	}
}

// Save uploads data as a document named name.
func (s *TelegramSaver) Save(ctx context.Context, name string, data []byte) (string, error) {
	_, err := s.send.SendDocument(ctx, &tgbot.SendDocumentParams{
		ChatID:   s.chatID,
		Document: &models.InputFileUpload{Filename: name, Data: bytes.NewReader(data)},
		Caption:  name,
	})
	if err != nil {
		s.log.WithError(err).WithField("file", name).Error("Failed to send document")
		return "", fmt.Errorf("failed to send %s: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{"file": name, "bytes": len(data)}).Info("Document sent")
	return fmt.Sprintf("chat:%d/%s", s.chatID, name), nil
}

// chatNotifier shows gallery messages as chat replies.
type chatNotifier struct {
	send   sender
	chatID int64
	log    logrus.FieldLogger
}

func (n *chatNotifier) Success(msg string) { n.reply("✅ " + msg) }

func (n *chatNotifier) Error(msg string) { n.reply("⚠️ " + msg) }

func (n *chatNotifier) reply(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if _, err := n.send.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: n.chatID, Text: text}); err != nil {
		n.log.WithError(err).Warn("Failed to send notification")
	}
}
