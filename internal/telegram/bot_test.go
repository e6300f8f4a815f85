package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var path string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	bot, err := NewBot(Config{BotToken: "T0K", ChatID: "42", APIBase: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if err := bot.SendMessage(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if path != "/botT0K/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" || payload["text"] != "<b>hi</b>" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSendPhoto(t *testing.T) {
	var caption string
	var photo []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caption = r.FormValue("caption")
		f, _, err := r.FormFile("photo")
		if err == nil {
			photo, _ = io.ReadAll(f)
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	bot, _ := NewBot(Config{BotToken: "t", ChatID: "1", APIBase: srv.URL})
	if err := bot.SendPhoto(context.Background(), []byte{0xff, 0xd8}, "alert"); err != nil {
		t.Fatal(err)
	}
	if caption != "alert" || len(photo) != 2 {
		t.Errorf("caption=%q photo=%v", caption, photo)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"ok":false,"error_code":400,"description":"chat not found"}`)
	}))
	defer srv.Close()

	bot, _ := NewBot(Config{BotToken: "t", ChatID: "1", APIBase: srv.URL})
	err := bot.SendMessage(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	if _, err := NewBot(Config{ChatID: "1"}); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := NewBot(Config{BotToken: "t"}); err == nil {
		t.Error("missing chat id accepted")
	}
}
