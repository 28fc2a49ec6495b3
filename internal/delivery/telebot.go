package delivery

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/greetly/greetly/core/telegram/keyboard"
)

// FlowCallbackKey is the single callback unique shared by all flow buttons.
// The payload carries "<action>" or "<action>:<data>".
const FlowCallbackKey = "flow"

// TelebotCourier adapts a telebot Bot to the Courier contract.
type TelebotCourier struct {
	bot *tele.Bot
}

// NewTelebotCourier wraps the given bot.
func NewTelebotCourier(bot *tele.Bot) *TelebotCourier {
	return &TelebotCourier{bot: bot}
}

func buildMarkup(rows [][]Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	btnRows := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				r = append(r, keyboard.InlineBtn{Text: b.Text, URL: b.URL})
				continue
			}
			data := b.Action
			if b.Data != "" {
				data = b.Action + ":" + b.Data
			}
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: FlowCallbackKey, Data: data})
		}
		btnRows = append(btnRows, r)
	}
	return keyboard.InlineButtonsRows(btnRows...)
}

func (t *TelebotCourier) content(msg Message) interface{} {
	if msg.PhotoPath != "" {
		return &tele.Photo{File: tele.FromDisk(msg.PhotoPath), Caption: msg.Text}
	}
	return msg.Text
}

// Send delivers a new message to the chat.
func (t *TelebotCourier) Send(ctx context.Context, chatID int64, msg Message) (Ref, error) {
	opts := &tele.SendOptions{}
	if markup := buildMarkup(msg.Rows); markup != nil {
		opts.ReplyMarkup = markup
	}
	m, err := t.bot.Send(tele.ChatID(chatID), t.content(msg), opts)
	if err != nil {
		return Ref{}, err
	}
	return Ref{ChatID: chatID, MessageID: m.ID}, nil
}

// Edit replaces the text and keyboard of a previously sent message.
func (t *TelebotCourier) Edit(ctx context.Context, ref Ref, msg Message) error {
	opts := &tele.SendOptions{}
	if markup := buildMarkup(msg.Rows); markup != nil {
		opts.ReplyMarkup = markup
	}
	stored := storedMessage(ref)
	_, err := t.bot.Edit(stored, msg.Text, opts)
	return err
}

// Delete removes a message. Deleting an already-deleted message is not an error.
func (t *TelebotCourier) Delete(ctx context.Context, ref Ref) error {
	err := t.bot.Delete(storedMessage(ref))
	if err == nil {
		return nil
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Description), "message to delete not found") {
		return nil
	}
	return err
}

type editable struct {
	messageID string
	chatID    int64
}

func (e editable) MessageSig() (string, int64) { return e.messageID, e.chatID }

func storedMessage(ref Ref) tele.Editable {
	return editable{messageID: strconv.Itoa(ref.MessageID), chatID: ref.ChatID}
}
