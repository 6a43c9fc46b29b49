// Package callbacks decodes inline button data.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Sep separates fields inside a button payload.
const Sep = "|"

// Parse splits telebot's "\f<unique>|<payload>" encoding into key and
// payload. A callback already carrying Unique is returned as is.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the unique part of the current callback.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the data after the unique part.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

// Fields splits a payload on Sep; an empty payload has no fields.
func Fields(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, Sep)
}

// Join builds a payload from fields.
func Join(fields ...string) string {
	return strings.Join(fields, Sep)
}

// Int parses field i of payload.
func Int(payload string, i int) (int, error) {
	f := Fields(payload)
	if i < 0 || i >= len(f) {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(f[i])
}
