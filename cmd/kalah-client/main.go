package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/park285/kalah-relay/internal/transport"
)

type lineConn interface {
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
}

func main() {
	addr := flag.String("addr", envOr("KALAH_ADDR", "localhost:1024"), "TCP address of the relay")
	wsURL := flag.String("ws", os.Getenv("KALAH_WS_URL"), "WebSocket URL (overrides -addr)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	var (
		conn lineConn
		err  error
	)
	if *wsURL != "" {
		conn, err = transport.DialWS(dctx, *wsURL)
	} else {
		conn, err = transport.DialTCP(dctx, *addr)
	}
	cancel()
	if err != nil {
		log.Fatalf("connect error: %v", err)
	}
	defer conn.Close()

	os.Exit(play(ctx, conn, os.Stdin, os.Stdout))
}

// play relays server lines to out and input lines to the server. It returns
// the process exit code: 0 after a normal finish, 1 on connection loss and
// 2 on a protocol desync.
func play(ctx context.Context, conn lineConn, in io.Reader, out io.Writer) int {
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if err := conn.WriteLine(ctx, strings.TrimSpace(sc.Text())); err != nil {
				return
			}
		}
	}()

	var t tracker
	for {
		line, err := conn.ReadLine(ctx)
		if err != nil {
			if t.outcome != "" {
				return 0
			}
			if errors.Is(err, context.Canceled) {
				return 0
			}
			fmt.Fprintf(out, "connection lost: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, line)
		if err := t.feed(line); err != nil {
			fmt.Fprintf(out, "desync: %v\n", err)
			return 2
		}
		if t.done {
			if t.won() {
				fmt.Fprintln(out, "You won.")
			}
			return 0
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
