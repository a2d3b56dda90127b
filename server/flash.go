package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookieName = "messages"

// Message levels, used as CSS classes
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "danger"
)

// FlashMessage is a one-shot notice shown on the next rendered page
type FlashMessage struct {
	Level string `json:"l"`
	Text  string `json:"t"`
}

// addFlash queues messages for the next page, keeping any not yet shown
func addFlash(w http.ResponseWriter, r *http.Request, msgs ...FlashMessage) {
	all := append(readFlash(r), msgs...)
	data, err := json.Marshal(all)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash returns pending messages and clears them
func takeFlash(w http.ResponseWriter, r *http.Request) []FlashMessage {
	msgs := readFlash(r)
	if len(msgs) > 0 {
		clearCookie(w, flashCookieName)
	}
	return msgs
}

func readFlash(r *http.Request) []FlashMessage {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var msgs []FlashMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

func flashSuccess(text string) FlashMessage { return FlashMessage{Level: LevelSuccess, Text: text} }
func flashInfo(text string) FlashMessage    { return FlashMessage{Level: LevelInfo, Text: text} }
func flashWarning(text string) FlashMessage { return FlashMessage{Level: LevelWarning, Text: text} }
func flashError(text string) FlashMessage   { return FlashMessage{Level: LevelError, Text: text} }
