package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/kalah-relay/internal/obslog"
)

const (
	defaultWriteTimeout = 10 * time.Second
	maxLineBytes        = 4096
)

// ErrLineTooLong is returned for a line longer than maxLineBytes. The line has
// already been discarded, so the connection stays usable and the error reports
// InvalidInput.
var ErrLineTooLong error = lineTooLongError{}

type lineTooLongError struct{}

func (lineTooLongError) Error() string      { return "line too long" }
func (lineTooLongError) InvalidInput() bool { return true }

// Conn is a line channel bound to one remote peer.
type Conn interface {
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
	Remote() string
}

// Handler receives each accepted connection. It may return immediately;
// the connection stays open until its Close is called.
type Handler func(ctx context.Context, c Conn)

// LineConn frames a stream connection into newline-terminated lines.
type LineConn struct {
	conn net.Conn
	r    *bufio.Reader

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewLineConn(c net.Conn) *LineConn {
	return &LineConn{conn: c, r: bufio.NewReaderSize(c, maxLineBytes)}
}

func (c *LineConn) Remote() string {
	if c == nil || c.conn == nil || c.conn.RemoteAddr() == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// ReadLine blocks for the next line. ctx cancellation and deadlines are
// mapped onto the connection's read deadline.
func (c *LineConn) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dl, hasDL := ctx.Deadline()
	if err := c.conn.SetReadDeadline(dl); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	var b strings.Builder
	over := false
	for {
		chunk, err := c.r.ReadSlice('\n')
		if !over {
			b.Write(chunk)
			// room for a trailing \r\n
			if b.Len() > maxLineBytes+2 {
				over = true
				b.Reset()
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		if hasDL && !time.Now().Before(dl) {
			return "", context.DeadlineExceeded
		}
		return "", err
	}
	line := strings.TrimRight(b.String(), "\r\n")
	if over || len(line) > maxLineBytes {
		return "", ErrLineTooLong
	}
	return line, nil
}

func (c *LineConn) WriteLine(ctx context.Context, line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Now().Add(defaultWriteTimeout)
	}
	if err := c.conn.SetWriteDeadline(dl); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *LineConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// ListenTCP binds addr and serves until ctx is done.
func ListenTCP(ctx context.Context, addr string, h Handler) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return Serve(ctx, ln, h)
}

// Serve accepts on ln until ctx is done or the listener fails. Each
// connection is handed to h on its own goroutine.
func Serve(ctx context.Context, ln net.Listener, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	obslog.L().Info("tcp_listen", zap.String("addr", ln.Addr().String()))
	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0
		lc := NewLineConn(conn)
		obslog.L().Debug("tcp_accept", zap.String("remote", lc.Remote()))
		go h(ctx, lc)
	}
}

// DialTCP connects to a line server.
func DialTCP(ctx context.Context, addr string) (*LineConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewLineConn(conn), nil
}
