package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mudgate/mudgate/internal/identity"
)

// Login runs the command-style login automaton once, in StateAuthenticating:
//
//  1. Drain the banner; if it already reads as logged in, go active.
//  2. Send the connect command.
//  3. A reply matching a failure phrase falls back to create-then-connect
//     (when auto-create is enabled).
//  4. Any reply that does not match a failure phrase means the backend
//     accepted us: go active and start relaying output.
//
// This is pattern matching on natural-language backend text, not a
// structured protocol, which is why the phrase sets come from
// configuration. Matching happens only during authentication, so a
// failure phrase echoed later in ordinary game output cannot kill the
// session.
func (s *Session) Login(ctx context.Context, creds identity.Credentials) error {
	s.setState(StateAuthenticating)

	banner := s.waitBurst(ctx, s.cfg.BannerWait)
	if banner != "" && s.matchSuccess(banner) {
		s.setState(StateActive)
		return nil
	}

	connectCmd := renderCommand(s.cfg.ConnectTemplate, creds)

	if err := s.Send(connectCmd); err != nil {
		return err
	}
	reply := s.waitBurst(ctx, s.cfg.ResponseWait)
	if !s.matchFailure(reply) {
		s.setState(StateActive)
		return nil
	}

	if !s.cfg.AutoCreate {
		s.failAuth()
		return fmt.Errorf("%w: account %s rejected and auto-create is disabled", ErrAuthenticationFailed, creds.AccountName)
	}

	// Unknown account (or stale password): provision and retry.
	if err := s.Send(renderCommand(s.cfg.CreateTemplate, creds)); err != nil {
		return err
	}
	created := s.waitBurst(ctx, s.cfg.ResponseWait)
	if s.matchCreated(created) {
		s.mu.Lock()
		s.createdAccount = true
		s.mu.Unlock()
	}

	if err := s.Send(connectCmd); err != nil {
		return err
	}
	reply = s.waitBurst(ctx, s.cfg.ResponseWait)
	if s.matchFailure(reply) {
		s.failAuth()
		return fmt.Errorf("%w: account %s", ErrAuthenticationFailed, creds.AccountName)
	}

	s.setState(StateActive)
	return nil
}

func (s *Session) failAuth() {
	s.closeWithErr(ErrAuthenticationFailed)
}

// waitBurst waits for the next coalesced output burst, returning "" on
// timeout, cancellation, or session end.
func (s *Session) waitBurst(ctx context.Context, wait time.Duration) string {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case text := <-s.loginCh:
		return text
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	case <-s.done:
		return ""
	}
}

func (s *Session) matchFailure(output string) bool {
	return output != "" && s.cfg.IsLoginFailure != nil && s.cfg.IsLoginFailure(output)
}

func (s *Session) matchSuccess(output string) bool {
	return s.cfg.IsLoginSuccess != nil && s.cfg.IsLoginSuccess(output)
}

func (s *Session) matchCreated(output string) bool {
	return s.cfg.IsCreated != nil && s.cfg.IsCreated(output)
}

// renderCommand fills the {account} and {password} placeholders of a login
// command template.
func renderCommand(template string, creds identity.Credentials) string {
	cmd := strings.ReplaceAll(template, "{account}", creds.AccountName)
	return strings.ReplaceAll(cmd, "{password}", creds.Password)
}
