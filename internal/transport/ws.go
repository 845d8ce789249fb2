package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/kalah-relay/internal/obslog"
)

// WSLineConn carries one protocol line per WebSocket text message.
type WSLineConn struct {
	conn   *websocket.Conn
	remote string

	wmu       sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// maxFrameBytes caps a whole message. Messages between maxLineBytes and this
// are drained and reported as ErrLineTooLong; larger ones close the conn.
const maxFrameBytes = 1 << 20

func NewWSLineConn(c *websocket.Conn, remote string) *WSLineConn {
	c.SetReadLimit(maxFrameBytes)
	return &WSLineConn{conn: c, remote: remote, done: make(chan struct{})}
}

func (c *WSLineConn) Remote() string { return c.remote }

// Done is closed once Close has been called.
func (c *WSLineConn) Done() <-chan struct{} { return c.done }

func (c *WSLineConn) ReadLine(ctx context.Context) (string, error) {
	for {
		typ, r, err := c.conn.Reader(ctx)
		if err != nil {
			return "", c.readErr(ctx, err)
		}
		if typ != websocket.MessageText {
			// binary frames are not part of the protocol
			if _, err := io.Copy(io.Discard, r); err != nil {
				return "", c.readErr(ctx, err)
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(r, maxLineBytes+3))
		if err != nil {
			return "", c.readErr(ctx, err)
		}
		if len(data) > maxLineBytes+2 {
			if _, err := io.Copy(io.Discard, r); err != nil {
				return "", c.readErr(ctx, err)
			}
			return "", ErrLineTooLong
		}
		line := strings.TrimRight(string(data), "\r\n")
		if len(line) > maxLineBytes {
			return "", ErrLineTooLong
		}
		return line, nil
	}
}

func (c *WSLineConn) readErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

func (c *WSLineConn) WriteLine(ctx context.Context, line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultWriteTimeout)
		defer cancel()
	}
	return c.conn.Write(ctx, websocket.MessageText, []byte(line))
}

func (c *WSLineConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "match over")
		close(c.done)
	})
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return nil
	}
	return err
}

// WSHandler upgrades requests and passes each connection to h using base as
// the connection context. The HTTP handler stays open until the line conn is
// closed, since returning would cancel the hijacked request.
func WSHandler(base context.Context, h Handler, originPatterns ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:  originPatterns,
			CompressionMode: websocket.CompressionNoContextTakeover,
		})
		if err != nil {
			obslog.L().Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		lc := NewWSLineConn(c, r.RemoteAddr)
		obslog.L().Debug("ws_accept", zap.String("remote", lc.Remote()))
		h(base, lc)
		select {
		case <-lc.Done():
		case <-base.Done():
			_ = lc.Close()
		}
	})
}

// ListenWS serves the WebSocket endpoint at path on addr until ctx is done.
func ListenWS(ctx context.Context, addr, path string, h Handler, originPatterns ...string) error {
	if path == "" {
		path = "/ws"
	}
	mux := http.NewServeMux()
	mux.Handle(path, WSHandler(ctx, h, originPatterns...))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	obslog.L().Info("ws_listen", zap.String("addr", addr), zap.String("path", path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ws listen %s: %w", addr, err)
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	}
}

// DialWS connects to a WebSocket line server.
func DialWS(ctx context.Context, url string) (*WSLineConn, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(dctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, err
	}
	return NewWSLineConn(c, url), nil
}
