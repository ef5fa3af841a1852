package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"pairchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var errUnsupportedPayload = errors.New("telegram: unsupported media payload")

// ForwardMedia posts a media message to the admin chat with the sender's
// fingerprint as caption. Payloads are http(s) URLs or base64 data URLs.
func (b *ModerationBot) ForwardMedia(ctx context.Context, kind, payload, fingerprint string) error {
	if b.AdminChatID == 0 || b.mediaPaused.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := mediaFile(kind, payload)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("%s from %s", kind, fingerprint)

	var out tgbotapi.Chattable
	switch kind {
	case models.KindImage:
		photo := tgbotapi.NewPhoto(b.AdminChatID, file)
		photo.Caption = caption
		out = photo
	case models.KindGIF:
		anim := tgbotapi.NewAnimation(b.AdminChatID, file)
		anim.Caption = caption
		out = anim
	case models.KindAudio:
		voice := tgbotapi.NewVoice(b.AdminChatID, file)
		voice.Caption = caption
		out = voice
	case models.KindSticker:
		out = tgbotapi.NewSticker(b.AdminChatID, file)
	default:
		return fmt.Errorf("%w: kind %q", errUnsupportedPayload, kind)
	}

	if _, err := b.API.Send(out); err != nil {
		return fmt.Errorf("telegram: forward %s: %w", kind, err)
	}
	return nil
}

// mediaFile turns a message payload into an upload the Bot API accepts.
func mediaFile(kind, payload string) (tgbotapi.RequestFileData, error) {
	switch {
	case strings.HasPrefix(payload, "https://"), strings.HasPrefix(payload, "http://"):
		return tgbotapi.FileURL(payload), nil
	case strings.HasPrefix(payload, "data:"):
		meta, data, ok := strings.Cut(strings.TrimPrefix(payload, "data:"), ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, fmt.Errorf("%w: data URL is not base64", errUnsupportedPayload)
		}
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUnsupportedPayload, err)
		}
		return tgbotapi.FileBytes{Name: kind + extension(meta), Bytes: raw}, nil
	}
	return nil, errUnsupportedPayload
}

func extension(meta string) string {
	mime := strings.TrimSuffix(meta, ";base64")
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" {
		sub, _, _ = strings.Cut(sub, ";")
		return "." + strings.TrimPrefix(sub, "x-")
	}
	return ""
}
