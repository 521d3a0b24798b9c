// Package gateway connects inbound chat events to backend sessions.
//
// The Dispatcher is the single entry and exit point of the gateway: it
// filters messages by channel visibility, intercepts the local command
// set, resolves sessions through the registry, forwards everything else
// as backend commands, and relays each session's output back to the
// originating identity as ordered, bounded chat messages.
package gateway

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/mudgate/mudgate/internal/chunker"
	"github.com/mudgate/mudgate/internal/identity"
	"github.com/mudgate/mudgate/internal/logutil"
	"github.com/mudgate/mudgate/internal/session"
)

// ChannelKind classifies where an inbound message came from.
type ChannelKind string

const (
	ChannelDirect ChannelKind = "direct"
	ChannelGroup  ChannelKind = "group"
)

// Message is one inbound chat event from the chat boundary.
type Message struct {
	Identity    string
	DisplayName string
	Text        string
	Channel     ChannelKind
}

// Sender delivers outbound text to an external identity's chat channel.
// The chat platform client behind it is treated as a black box.
type Sender interface {
	Send(identity, text string) error
}

// Store persists the identity→account mapping. Implementations must not
// store the password in plaintext.
type Store interface {
	UpsertUser(ident, account, password, displayName string, createdAccount bool) error
}

// Config carries the dispatcher's policy settings.
type Config struct {
	ChunkMaxSize   int
	ChunkMaxCount  int
	DMOnly         bool
	WarnPublicPlay bool
	// NickCommandTemplate, when set, is sent as a backend command after
	// account creation with {name} replaced by a sanitized display name.
	NickCommandTemplate string
}

const helpText = `Commands:
- logout: end your current session
- whoami: show your mapped game account
- Anything else is sent to the game as a command.

Notes:
- Your chat account is mapped 1:1 to a single game account.
- Long output may be split into multiple messages.`

const (
	noticeBackendDown  = "The game server is unreachable right now. Try again in a moment."
	noticeAuthFailed   = "Could not log you into your game account. Contact the gateway operator."
	noticeGatewayError = "The gateway hit an internal error handling that command."
	noticeLoggedOut    = "Logged out."
	noticeNoSession    = "You have no active session."
	noticeSessionLost  = "Connection to the game was lost. Your next message starts a fresh session."
	noticeWelcome      = "Created your new game account. Welcome!"
	noticePublicPlay   = "Heads up: you're playing in a public channel, other people can read your game history here."
)

// Dispatcher routes chat messages to backend sessions and session output
// back to chat.
type Dispatcher struct {
	registry *session.Registry
	mapper   *identity.Mapper
	sender   Sender
	store    Store // optional
	cfg      Config

	// warned tracks identities already given the public-play warning.
	// In-process only, reset on restart, same as the rest of the
	// session state.
	warnedMu sync.Mutex
	warned   map[string]bool
}

// New creates a Dispatcher. store may be nil to run without persistence.
func New(registry *session.Registry, mapper *identity.Mapper, sender Sender, store Store, cfg Config) *Dispatcher {
	if cfg.ChunkMaxSize <= 0 {
		cfg.ChunkMaxSize = 1800
	}
	if cfg.ChunkMaxCount <= 0 {
		cfg.ChunkMaxCount = 8
	}
	return &Dispatcher{
		registry: registry,
		mapper:   mapper,
		sender:   sender,
		store:    store,
		cfg:      cfg,
		warned:   make(map[string]bool),
	}
}

// HandleMessage processes one inbound chat event end to end. It never
// returns an error: every failure collapses to a single short user
// notice, with detail kept in the logs.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.Identity == "" {
		return
	}

	if msg.Channel != ChannelDirect {
		if d.cfg.DMOnly {
			return
		}
		d.maybeWarnPublic(msg.Identity)
	}

	switch strings.ToLower(text) {
	case "help", "?", "commands":
		d.notify(msg.Identity, helpText)
		return
	}

	creds := d.mapper.Derive(msg.Identity)
	d.upsertUser(msg, creds, false)

	switch strings.ToLower(text) {
	case "logout":
		d.logout(msg.Identity)
		return
	case "whoami":
		d.notify(msg.Identity, "Game account: `"+creds.AccountName+"`")
		return
	}

	d.forward(ctx, msg, creds, text)
}

// forward resolves the identity's session and sends the command. A send
// that fails because the session died is retried once against a fresh
// session; the user never sees a "not connected" error.
func (d *Dispatcher) forward(ctx context.Context, msg Message, creds identity.Credentials, command string) {
	for attempt := 0; attempt < 2; attempt++ {
		sess, created, err := d.registry.GetOrCreate(ctx, msg.Identity)
		if err != nil {
			d.reportSessionError(msg.Identity, err)
			return
		}
		if created {
			d.adoptSession(msg, creds, sess)
		}

		if err := sess.Send(command); err == nil {
			return
		} else if !errors.Is(err, session.ErrNotConnected) {
			log.Printf("[dispatcher] send %q for identity %s: %v",
				logutil.Truncate(logutil.Sanitize(command), 64), logutil.Sanitize(msg.Identity), err)
			d.notify(msg.Identity, noticeGatewayError)
			return
		}
		// Session died between lookup and send; make sure it is gone
		// and loop for a fresh one.
		sess.Close()
	}
	d.notify(msg.Identity, noticeBackendDown)
}

// adoptSession wires a freshly created session: starts its relay loop
// and runs the post-creation pleasantries for brand-new accounts.
func (d *Dispatcher) adoptSession(msg Message, creds identity.Credentials, sess *session.Session) {
	go d.relay(sess)

	if !sess.CreatedAccount() {
		return
	}
	d.notify(msg.Identity, noticeWelcome)
	d.upsertUser(msg, creds, true)

	if d.cfg.NickCommandTemplate != "" {
		name := sanitizeCharacterName(msg.DisplayName)
		cmd := strings.ReplaceAll(d.cfg.NickCommandTemplate, "{name}", name)
		if err := sess.Send(cmd); err != nil {
			log.Printf("[dispatcher] set nickname for identity %s: %v", logutil.Sanitize(msg.Identity), err)
		}
	}
}

// relay is the per-session output loop: it consumes the session's output
// channel (preserving backend ordering) until the session ends, then
// tells the user if the ending was not their own doing.
func (d *Dispatcher) relay(sess *session.Session) {
	for out := range sess.Output() {
		d.deliver(sess.Identity, out)
	}

	err := sess.Err()
	if err == nil || errors.Is(err, session.ErrAuthenticationFailed) {
		// Orderly logout, or an auth failure already reported by the
		// creation path.
		return
	}
	d.notify(sess.Identity, noticeSessionLost)
}

// deliver chunks one output burst and sends the fragments in order.
// ANSI-bearing output is fenced per fragment so colors render; the fence
// never spans a fragment boundary.
func (d *Dispatcher) deliver(ident, text string) {
	var chunks []string
	if chunker.HasANSI(text) {
		inner := d.cfg.ChunkMaxSize - chunker.FenceOverhead
		if inner < 200 {
			inner = 200
		}
		for _, c := range chunker.Chunk(text, inner, d.cfg.ChunkMaxCount) {
			chunks = append(chunks, chunker.WrapANSIBlock(c))
		}
	} else {
		chunks = chunker.Chunk(text, d.cfg.ChunkMaxSize, d.cfg.ChunkMaxCount)
	}

	for _, c := range chunks {
		if err := d.sender.Send(ident, c); err != nil {
			log.Printf("[dispatcher] deliver to identity %s: %v", logutil.Sanitize(ident), err)
			return
		}
	}
}

func (d *Dispatcher) logout(ident string) {
	sess, ok := d.registry.Get(ident)
	if !ok {
		d.notify(ident, noticeNoSession)
		return
	}
	sess.Close()
	d.notify(ident, noticeLoggedOut)
}

func (d *Dispatcher) reportSessionError(ident string, err error) {
	log.Printf("[dispatcher] session for identity %s: %v", logutil.Sanitize(ident), err)

	var ce *session.ConnectError
	switch {
	case errors.As(err, &ce):
		d.notify(ident, noticeBackendDown)
	case errors.Is(err, session.ErrAuthenticationFailed):
		d.notify(ident, noticeAuthFailed)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown or caller gave up; nothing useful to tell the user.
	default:
		d.notify(ident, noticeGatewayError)
	}
}

func (d *Dispatcher) maybeWarnPublic(ident string) {
	if !d.cfg.WarnPublicPlay {
		return
	}
	d.warnedMu.Lock()
	seen := d.warned[ident]
	d.warned[ident] = true
	d.warnedMu.Unlock()
	if !seen {
		d.notify(ident, noticePublicPlay)
	}
}

func (d *Dispatcher) notify(ident, text string) {
	if err := d.sender.Send(ident, text); err != nil {
		log.Printf("[dispatcher] notify identity %s: %v", logutil.Sanitize(ident), err)
	}
}

func (d *Dispatcher) upsertUser(msg Message, creds identity.Credentials, createdAccount bool) {
	if d.store == nil {
		return
	}
	err := d.store.UpsertUser(msg.Identity, creds.AccountName, creds.Password, msg.DisplayName, createdAccount)
	if err != nil {
		log.Printf("[dispatcher] upsert user %s: %v", logutil.Sanitize(msg.Identity), err)
	}
}

var characterNameAllowed = regexp.MustCompile(`[^A-Za-z0-9 '\-]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// sanitizeCharacterName reduces a chat display name to something the
// backend will accept as an in-character name.
func sanitizeCharacterName(name string) string {
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
	name = characterNameAllowed.ReplaceAllString(name, "")
	if len(name) > 30 {
		name = strings.TrimSpace(name[:30])
	}
	if name == "" {
		return "Adventurer"
	}
	return name
}
