package telegram

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command of the bot.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// OwnerOnly commands are refused to everyone else and are published
	// only in the owners' chats.
	OwnerOnly bool
	// Hidden commands work but never show up in a menu.
	Hidden bool
}

// NamedCommand is a registered command with its "/name".
type NamedCommand struct {
	Name string
	Command
}

var commandName = regexp.MustCompile(`^/[a-z0-9_]{1,32}$`)

// Registry holds the commands and callback handlers of the bot together
// with the handlers for updates nothing else claims.
type Registry struct {
	mu               sync.RWMutex
	commands         []NamedCommand
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty Registry. Unknown callbacks get a short
// message until SetCallbackNotFound replaces it; the query itself is
// already answered by the callback route.
func NewRegistry() *Registry {
	return &Registry{
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Send("Aksi tidak dikenal.")
		},
	}
}

// RegisterCommand adds a command. Names follow Telegram's rules: a slash
// and up to 32 lowercase letters, digits or underscores; the description is
// 1 to 256 characters.
func (r *Registry) RegisterCommand(name string, cmd Command) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	switch n := utf8.RuneCountInString(cmd.Description); {
	case !commandName.MatchString(name):
		return fmt.Errorf("command %q: invalid name", name)
	case cmd.Handler == nil:
		return fmt.Errorf("command %s: nil handler", name)
	case n == 0 || n > 256:
		return fmt.Errorf("command %s: description must be 1-256 characters", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commands {
		if c.Name == name {
			return fmt.Errorf("command %s already registered", name)
		}
	}
	r.commands = append(r.commands, NamedCommand{Name: name, Command: cmd})
	return nil
}

// Commands returns the commands in registration order.
func (r *Registry) Commands() []NamedCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]NamedCommand(nil), r.commands...)
}

// Menu lists the published commands in registration order. owner adds the
// owner-only ones.
func (r *Registry) Menu(owner bool) []tele.Command {
	var out []tele.Command
	for _, c := range r.Commands() {
		if c.Hidden || (c.OwnerOnly && !owner) {
			continue
		}
		out = append(out, tele.Command{Text: strings.TrimPrefix(c.Name, "/"), Description: c.Description})
	}
	return out
}

// RegisterCallback maps a callback unique to its handler.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return errors.New("callback needs a key and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("callback %q already registered", key)
	}
	r.callbacks[key] = h
	return nil
}

// Callback returns the handler registered under key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// Callbacks returns the sorted callback keys.
func (r *Registry) Callbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callbacks.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text no conversation is waiting for.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for unclaimed text.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// Publish sets the public command menu and, when owner-only commands
// exist, a fuller menu scoped to each owner's private chat.
func (r *Registry) Publish(api tele.API, owners []int64) error {
	public := r.Menu(false)
	if err := api.SetCommands(public); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	full := r.Menu(true)
	if len(full) == len(public) {
		return nil
	}
	var errs []error
	for _, id := range owners {
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: id}
		if err := api.SetCommands(full, scope); err != nil {
			errs = append(errs, fmt.Errorf("set owner commands for %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
