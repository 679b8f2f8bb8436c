package tg

import (
	"errors"
	"fmt"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errClass
	}{
		{"api 401", &tgbotapi.Error{Code: 401, Message: "Unauthorized"}, errClassAuth},
		{"api 404", &tgbotapi.Error{Code: 404, Message: "Not Found"}, errClassAuth},
		{"api 409", &tgbotapi.Error{Code: 409, Message: "Conflict: terminated by other getUpdates"}, errClassConflict},
		{"api 429", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, errClassTransient},
		{"wrapped 401", fmt.Errorf("poll: %w", &tgbotapi.Error{Code: 401}), errClassAuth},
		{"string unauthorized", errors.New("Unauthorized"), errClassAuth},
		{"string conflict", errors.New("Conflict: already polling"), errClassConflict},
		{"network timeout", errors.New("context deadline exceeded"), errClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyError(tc.err); got != tc.want {
				t.Fatalf("classifyError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestParseChannelID(t *testing.T) {
	id, err := parseChannelID("-1001234567890")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != -1001234567890 {
		t.Fatalf("unexpected id: %d", id)
	}

	if _, err := parseChannelID("shopchannel"); err == nil {
		t.Fatal("expected error for non-numeric channel without @")
	}
}

func TestUpdateKind(t *testing.T) {
	cases := []struct {
		name   string
		update tgbotapi.Update
		want   string
	}{
		{"callback", tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{}}, "callback"},
		{"contact", tgbotapi.Update{Message: &tgbotapi.Message{Contact: &tgbotapi.Contact{}}}, "contact"},
		{"command", tgbotapi.Update{Message: &tgbotapi.Message{
			Text:     "/start",
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		}}, "command"},
		{"plain message", tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}}, "message"},
		{"other", tgbotapi.Update{}, "other"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := updateKind(tc.update); got != tc.want {
				t.Fatalf("updateKind = %q, want %q", got, tc.want)
			}
		})
	}
}
