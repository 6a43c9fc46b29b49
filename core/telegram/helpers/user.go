package helpers

import tele "gopkg.in/telebot.v4"

// Identity is who sent an update and where it came from.
type Identity struct {
	UserID   int64
	ChatID   int64
	Username string
}

// IdentityOf reads the sender and chat of c. Private chats fall back to the
// user id when the chat is missing.
func IdentityOf(c tele.Context) Identity {
	var id Identity
	if u := c.Sender(); u != nil {
		id.UserID = u.ID
		id.Username = u.Username
	}
	if ch := c.Chat(); ch != nil {
		id.ChatID = ch.ID
	} else {
		id.ChatID = id.UserID
	}
	return id
}
