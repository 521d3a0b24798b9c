package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mudgate/mudgate/internal/identity"
)

func testCreds() identity.Credentials {
	return identity.Credentials{AccountName: "discord_42", Password: "pw_deadbeef"}
}

func TestSession_LoginHappyPath(t *testing.T) {
	var got []string
	var mu sync.Mutex
	fb := startBackend(t, func(c *backendConn) {
		c.send("This is Testland. Log in.")
		line, ok := c.readLine()
		if !ok {
			return
		}
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
		c.send("You become Adventurer.")
		for {
			if _, ok := c.readLine(); !ok {
				return
			}
		}
	})

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	if st := sess.State(); st != StateConnecting {
		t.Errorf("expected connecting after open, got %s", st)
	}

	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if st := sess.State(); st != StateActive {
		t.Errorf("expected active after login, got %s", st)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "connect discord_42 pw_deadbeef" {
		t.Errorf("backend saw commands %v", got)
	}
}

func TestSession_LoginAutoCreate(t *testing.T) {
	var got []string
	var mu sync.Mutex
	fb := startBackend(t, func(c *backendConn) {
		c.send("This is Testland. Log in.")
		for i := 0; ; i++ {
			line, ok := c.readLine()
			if !ok {
				return
			}
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
			switch i {
			case 0:
				c.send("Could not find that account name.")
			case 1:
				c.send("A new account 'discord_42' was created. Welcome!")
			default:
				c.send("You become Adventurer.")
			}
		}
	})

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if !sess.CreatedAccount() {
		t.Error("expected CreatedAccount after provisioning")
	}
	if st := sess.State(); st != StateActive {
		t.Errorf("expected active, got %s", st)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"connect discord_42 pw_deadbeef",
		"create discord_42 pw_deadbeef",
		"connect discord_42 pw_deadbeef",
	}
	if len(got) != len(want) {
		t.Fatalf("backend saw %d commands, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSession_LoginBothAttemptsFail(t *testing.T) {
	fb := startBackend(t, func(c *backendConn) {
		c.send("This is Testland. Log in.")
		for {
			if _, ok := c.readLine(); !ok {
				return
			}
			c.send("Wrong password entered.")
		}
	})

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = sess.Login(context.Background(), testCreds())
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if st := sess.State(); st != StateClosed {
		t.Errorf("expected closed after auth failure, got %s", st)
	}
}

func TestSession_NoAutoCreate(t *testing.T) {
	fb := startBackend(t, func(c *backendConn) {
		c.send("Log in.")
		for {
			if _, ok := c.readLine(); !ok {
				return
			}
			c.send("Could not find that account name.")
		}
	})

	cfg := testConfig(fb.port())
	cfg.AutoCreate = false

	sess, err := Open(context.Background(), "42", testCreds(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = sess.Login(context.Background(), testCreds())
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestSession_OutputRelay(t *testing.T) {
	fb := startBackend(t, loginAndEcho)

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()
	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := sess.Send("look"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case out := <-sess.Output():
		if !strings.Contains(out, "echo: look") {
			t.Errorf("unexpected output %q", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no output relayed")
	}
}

func TestSession_OutputOrdering(t *testing.T) {
	fb := startBackend(t, loginAndEcho)

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()
	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	for _, cmd := range []string{"first", "second", "third"} {
		if err := sess.Send(cmd); err != nil {
			t.Fatalf("Send %q: %v", cmd, err)
		}
		// Give the echo time to arrive so bursts stay distinct in order.
		select {
		case out := <-sess.Output():
			if !strings.Contains(out, "echo: "+cmd) {
				t.Errorf("expected echo of %q, got %q", cmd, out)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no echo for %q", cmd)
		}
	}
}

func TestSession_SendAfterBackendDisconnect(t *testing.T) {
	fb := startBackend(t, func(c *backendConn) {
		c.send("Log in.")
		if _, ok := c.readLine(); !ok {
			return
		}
		c.send("You become Adventurer.")
		c.Close()
	})

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice backend disconnect")
	}

	if err := sess.Send("look"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after disconnect, got %v", err)
	}
	if sess.Err() == nil {
		t.Error("expected a terminal I/O error to be recorded")
	}
}

func TestSession_CloseIdempotentAndConcurrent(t *testing.T) {
	fb := startBackend(t, loginAndEcho)

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Close()
		}()
	}
	wg.Wait()

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
	if st := sess.State(); st != StateClosed {
		t.Errorf("expected closed, got %s", st)
	}
	if err := sess.Err(); err != nil {
		t.Errorf("orderly close should have nil terminal error, got %v", err)
	}
}

func TestSession_OutputClosedAfterEnd(t *testing.T) {
	fb := startBackend(t, loginAndEcho)

	sess, err := Open(context.Background(), "42", testCreds(), testConfig(fb.port()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Login(context.Background(), testCreds()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	sess.Close()

	// The output channel must close so relay loops terminate.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sess.Output():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("output channel never closed")
		}
	}
}

func TestOpen_ConnectError(t *testing.T) {
	cfg := testConfig(1) // nothing listens on port 1
	cfg.ConnectTimeout = 200 * time.Millisecond

	_, err := Open(context.Background(), "42", testCreds(), cfg)
	if err == nil {
		t.Fatal("expected connect error")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Errorf("expected *ConnectError, got %T: %v", err, err)
	}
}
