package session

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mudgate/mudgate/internal/config"
)

// fakeBackend is an in-process line-oriented server standing in for the
// MUD during tests. Each accepted connection runs the test's handler in
// its own goroutine, scripted like a real unlogged-in command set.
type fakeBackend struct {
	t  *testing.T
	ln net.Listener

	mu    sync.Mutex
	conns int
}

type backendConn struct {
	net.Conn
	r *bufio.Reader
}

// readLine returns the next command line sent by the gateway with the
// line terminator stripped, or ok=false when the connection ended.
func (c *backendConn) readLine() (string, bool) {
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// send writes backend output followed by a line terminator.
func (c *backendConn) send(text string) {
	c.Write([]byte(text + "\r\n"))
}

func startBackend(t *testing.T, handler func(c *backendConn)) *fakeBackend {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fb := &fakeBackend{t: t, ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fb.mu.Lock()
			fb.conns++
			fb.mu.Unlock()
			go handler(&backendConn{Conn: conn, r: bufio.NewReader(conn)})
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return fb
}

func (fb *fakeBackend) port() int {
	return fb.ln.Addr().(*net.TCPAddr).Port
}

func (fb *fakeBackend) connCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.conns
}

// loginAndEcho is a backend handler implementing a successful command
// login, then echoing every later command back as "echo: <cmd>".
func loginAndEcho(c *backendConn) {
	c.send("This is Testland. Log in.")
	if _, ok := c.readLine(); !ok {
		return
	}
	c.send("You become Adventurer.")
	for {
		line, ok := c.readLine()
		if !ok {
			return
		}
		c.send("echo: " + line)
	}
}

// testConfig returns a session Config pointed at the fake backend, with
// windows shortened so the login automaton runs in milliseconds.
func testConfig(port int) Config {
	phrases := config.DefaultLoginPhrases()
	return Config{
		Host:            "127.0.0.1",
		Port:            port,
		ConnectTimeout:  2 * time.Second,
		QuietWindow:     30 * time.Millisecond,
		BannerWait:      300 * time.Millisecond,
		ResponseWait:    500 * time.Millisecond,
		AutoCreate:      true,
		ConnectTemplate: "connect {account} {password}",
		CreateTemplate:  "create {account} {password}",
		IsLoginFailure:  phrases.IsFailure,
		IsLoginSuccess:  phrases.IsSuccess,
		IsCreated:       phrases.IsCreated,
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
