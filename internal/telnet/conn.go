// Package telnet provides the line-oriented transport to the MUD backend.
//
// The gateway does not negotiate telnet options. All IAC command and
// subnegotiation sequences arriving from the backend are stripped before
// the byte stream reaches the session layer; outbound traffic is plain
// text lines. This matches the gateway's contract of treating terminal
// protocol bytes as opaque.
package telnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// Telnet protocol bytes (RFC 854). Only enough of the protocol to skip it.
const (
	iac  = 255 // interpret as command
	dont = 254
	do   = 253
	wont = 252
	will = 251
	sb   = 250 // subnegotiation begin
	se   = 240 // subnegotiation end
)

// Conn is a telnet connection carrying line-oriented text. Reads strip IAC
// sequences; writes are serialized and CRLF-terminated. Conn is safe for
// one concurrent reader plus any number of writers.
type Conn struct {
	nc     net.Conn
	filter iacFilter

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the backend with a bounded timeout.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Conn{nc: nc}, nil
}

// Read fills p with text bytes from the backend, with telnet IAC command
// and subnegotiation sequences removed. A successful read may return n=0
// when the incoming data consisted solely of protocol bytes.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	if n > 0 {
		n = c.filter.strip(p[:n])
	}
	return n, err
}

// WriteLine sends one command line, appending the telnet line terminator.
// Concurrent calls are serialized so interleaved commands cannot corrupt
// each other on the wire.
func (c *Conn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// Close tears down the underlying connection. Idempotent; a close also
// unblocks any in-flight Read.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the backend address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// iacFilter removes telnet protocol sequences from a byte stream. It keeps
// its parse state across calls because sequences can span read boundaries.
type iacFilter struct {
	state filterState
}

type filterState int

const (
	stateData filterState = iota
	stateIAC              // saw IAC, next byte is a command
	stateOpt              // saw IAC WILL/WONT/DO/DONT, next byte is the option
	stateSub              // inside IAC SB ... IAC SE
	stateSubIAC           // saw IAC inside subnegotiation
)

// strip filters p in place and returns the number of text bytes kept.
func (f *iacFilter) strip(p []byte) int {
	kept := 0
	for _, b := range p {
		switch f.state {
		case stateData:
			if b == iac {
				f.state = stateIAC
			} else {
				p[kept] = b
				kept++
			}
		case stateIAC:
			switch b {
			case iac:
				// Escaped 0xFF data byte.
				p[kept] = b
				kept++
				f.state = stateData
			case will, wont, do, dont:
				f.state = stateOpt
			case sb:
				f.state = stateSub
			default:
				// Two-byte command (NOP, GA, ...): discard.
				f.state = stateData
			}
		case stateOpt:
			f.state = stateData
		case stateSub:
			if b == iac {
				f.state = stateSubIAC
			}
		case stateSubIAC:
			if b == se {
				f.state = stateData
			} else {
				// Including IAC IAC inside subnegotiation data.
				f.state = stateSub
			}
		}
	}
	return kept
}
