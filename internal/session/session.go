// Package session owns the per-identity backend sessions and the registry
// that maps external chat identities to them.
//
// Each Session holds exactly one telnet connection to the MUD backend and
// runs two goroutines: a blocking read loop and a coalescer that batches
// raw output into quiescent bursts. Bursts produced while the login
// automaton runs feed the automaton; once the session is active they are
// delivered on a bounded output channel consumed by the dispatcher's relay
// loop, which gives natural backpressure when the chat boundary is slow.
//
// The Registry is the single writer of the identity→session mapping.
// GetOrCreate is atomic per identity: concurrent first messages from the
// same user cannot race two sessions into existence.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudgate/mudgate/internal/identity"
	"github.com/mudgate/mudgate/internal/telnet"
)

// Config carries the settings a Session needs. The login phrase matchers
// are injected predicates so backend wording changes stay configuration.
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration

	// QuietWindow is how long the backend must stay silent before
	// buffered output is flushed as one burst.
	QuietWindow time.Duration
	// OutputBuffer is the capacity of the per-session output channel.
	OutputBuffer int

	// BannerWait bounds the initial wait for the backend's login banner;
	// ResponseWait bounds each wait for a login command's reply.
	BannerWait   time.Duration
	ResponseWait time.Duration

	AutoCreate      bool
	ConnectTemplate string
	CreateTemplate  string

	IsLoginFailure func(output string) bool
	IsLoginSuccess func(output string) bool
	IsCreated      func(output string) bool
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.QuietWindow <= 0 {
		c.QuietWindow = 250 * time.Millisecond
	}
	if c.OutputBuffer <= 0 {
		c.OutputBuffer = 16
	}
	if c.BannerWait <= 0 {
		c.BannerWait = 800 * time.Millisecond
	}
	if c.ResponseWait <= 0 {
		c.ResponseWait = 1500 * time.Millisecond
	}
	return c
}

// Session is one live backend connection for one external identity.
type Session struct {
	// ID is a unique identifier for this session (UUID).
	ID string
	// Identity is the external chat identity this session belongs to.
	Identity string
	// Account is the derived backend account name.
	Account string
	// CreatedAt is when the session was opened.
	CreatedAt time.Time

	cfg  Config
	conn *telnet.Conn

	mu             sync.Mutex
	state          State
	lastActivity   time.Time
	createdAccount bool
	termErr        error

	rawCh   chan []byte
	loginCh chan string
	output  chan string
	done    chan struct{}

	closeOnce sync.Once
}

// Open dials the backend and starts the session's read machinery. The
// session comes back in StateConnecting; callers run Login next. A dial
// failure is reported as *ConnectError and no session exists afterwards.
func Open(ctx context.Context, ident string, creds identity.Credentials, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	conn, err := telnet.Dial(ctx, cfg.Host, cfg.Port, cfg.ConnectTimeout)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	s := &Session{
		ID:           uuid.New().String(),
		Identity:     ident,
		Account:      creds.AccountName,
		CreatedAt:    time.Now(),
		cfg:          cfg,
		conn:         conn,
		state:        StateConnecting,
		lastActivity: time.Now(),
		rawCh:        make(chan []byte, 4),
		loginCh:      make(chan string, 8),
		output:       make(chan string, cfg.OutputBuffer),
		done:         make(chan struct{}),
	}

	go s.readLoop()
	go s.coalesce()
	return s, nil
}

// Send writes a single command line to the backend. It fails with
// ErrNotConnected unless the session is active or authenticating; a write
// failure also closes the session, since the transport is gone.
func (s *Session) Send(line string) error {
	st := s.State()
	if st != StateActive && st != StateAuthenticating {
		return ErrNotConnected
	}
	if err := s.conn.WriteLine(line); err != nil {
		s.closeWithErr(err)
		return ErrNotConnected
	}
	s.touch()
	return nil
}

// Output returns the channel of coalesced backend output bursts. It is
// closed when the session ends; consume it from a single relay loop.
func (s *Session) Output() <-chan string {
	return s.output
}

// Done returns a channel closed when the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error after Done is closed: nil for an orderly
// logout, otherwise the I/O or authentication error that ended the session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the time of the last send or received output.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// CreatedAccount reports whether the login automaton provisioned a new
// backend account for this session.
func (s *Session) CreatedAccount() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAccount
}

// Close tears the session down: closes the transport and transitions
// CLOSING → CLOSED. Safe to call repeatedly and concurrently with a
// backend-initiated disconnect; subscribers are notified exactly once.
func (s *Session) Close() {
	s.closeWithErr(nil)
}

func (s *Session) closeWithErr(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		if s.termErr == nil {
			s.termErr = err
		}
		s.mu.Unlock()

		s.conn.Close()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state != StateClosing && s.state != StateClosed {
		s.state = st
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// readLoop blocks on the transport and hands raw bytes to the coalescer.
// A read error ends the session: there is no reconnect logic, the next
// inbound chat message simply creates a fresh session.
func (s *Session) readLoop() {
	defer close(s.rawCh)
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.rawCh <- data:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			if s.termErr == nil && s.state != StateClosing && s.state != StateClosed {
				s.termErr = err
			}
			s.mu.Unlock()
			return
		}
	}
}

// coalesce batches raw reads into bursts separated by QuietWindow of
// backend silence, so prompts and multi-line room descriptions arrive as
// a single unit. It owns closing the output channel.
func (s *Session) coalesce() {
	var pending []byte
	timer := time.NewTimer(s.cfg.QuietWindow)
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.deliver(telnet.Decode(pending))
		pending = nil
	}

	for {
		select {
		case data, ok := <-s.rawCh:
			if !ok {
				flush()
				s.closeWithErr(nil)
				close(s.output)
				return
			}
			pending = append(pending, data...)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.cfg.QuietWindow)
		case <-timer.C:
			flush()
		}
	}
}

// deliver routes one burst: to the login automaton until the session is
// active, to the output channel afterwards.
func (s *Session) deliver(text string) {
	s.touch()
	if s.State() != StateActive {
		select {
		case s.loginCh <- text:
		default:
			// Automaton not reading and its buffer is full; drop rather
			// than stall the read path.
		}
		return
	}
	select {
	case s.output <- text:
	case <-s.done:
	}
}
