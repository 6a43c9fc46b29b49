package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/logger"
	"github.com/m3rciful/vcfbot/core/telegram/middleware"
	"github.com/m3rciful/vcfbot/core/telegram/sender"
)

// TelegramMessenger is the production Messenger. Every call goes through
// the dispatcher, which retries transient failures and keeps each chat's
// calls in order.
type TelegramMessenger struct {
	API        tele.API
	Dispatcher *sender.Dispatcher
}

func (m TelegramMessenger) do(ctx context.Context, chatID int64, action, endpoint string, run func() error) error {
	if m.Dispatcher == nil {
		return run()
	}
	return m.Dispatcher.Do(ctx, sender.Call{ChatID: chatID, Action: action, Endpoint: endpoint, Run: run})
}

func markdown(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	}
}

// Send implements Messenger.
func (m TelegramMessenger) Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (Handle, error) {
	var sent *tele.Message
	err := m.do(ctx, chatID, "send.text", "sendMessage", func() error {
		msg, err := m.API.Send(tele.ChatID(chatID), text, markdown(markup))
		if err != nil {
			return err
		}
		sent = msg
		return nil
	})
	if err != nil {
		return Handle{}, err
	}
	middleware.NoteSent(ctx, markup != nil)
	return Handle{ChatID: chatID, MessageID: sent.ID}, nil
}

// Edit implements Messenger; Telegram's "message is not modified" becomes
// ErrNotModified.
func (m TelegramMessenger) Edit(ctx context.Context, h Handle, text string, markup *tele.ReplyMarkup) error {
	ref := tele.StoredMessage{MessageID: strconv.Itoa(h.MessageID), ChatID: h.ChatID}
	notModified := false
	err := m.do(ctx, h.ChatID, "edit.text", "editMessageText", func() error {
		_, err := m.API.Edit(ref, text, markdown(markup))
		if isNotModified(err) {
			notModified = true
			return nil
		}
		return err
	})
	switch {
	case err != nil:
		return err
	case notModified:
		return ErrNotModified
	}
	middleware.NoteSent(ctx, markup != nil)
	return nil
}

// SendFile implements Messenger.
func (m TelegramMessenger) SendFile(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	err := m.do(ctx, chatID, "send.document", "sendDocument", func() error {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(data)),
			FileName: name,
			Caption:  caption,
		}
		_, err := m.API.Send(tele.ChatID(chatID), doc, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		return err
	})
	if err == nil {
		middleware.NoteSent(ctx, false)
	}
	return err
}

// Download fetches a document by file id, refusing anything over limit bytes.
func (m TelegramMessenger) Download(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	var data []byte
	err := m.do(ctx, logger.ChatIDFrom(ctx), "get.file", "getFile", func() error {
		rc, err := m.API.File(&tele.File{FileID: fileID})
		if err != nil {
			return err
		}
		defer rc.Close()
		r := io.Reader(rc)
		if limit > 0 {
			r = io.LimitReader(rc, limit+1)
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		if limit > 0 && int64(len(b)) > limit {
			return tooLarge(limit)
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	return data, nil
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
