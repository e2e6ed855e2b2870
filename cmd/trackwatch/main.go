// trackwatch - print a device's live tracking stream from a formcoach server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-formcoach/pkg/debug"
	"github.com/teslashibe/go-formcoach/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 120 * time.Second
	pingInterval     = 15 * time.Second
	maxBackoff       = 10 * time.Second
)

func main() {
	addr := flag.String("addr", "localhost:8090", "formcoach server host:port")
	device := flag.String("device", "", "Device ID to watch")
	action := flag.String("action", "", "Control action to send on connect: begin_calibration, finalize_calibration, reset, select_workout")
	workoutID := flag.String("workout", "", "Workout for select_workout")
	flag.BoolVar(&debug.Enabled, "debug", false, "Print raw frames")
	flag.Parse()

	if *device == "" {
		fmt.Fprintln(os.Stderr, "trackwatch: -device is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/tracking/" + url.PathEscape(*device)}
	backoff := time.Second
	for ctx.Err() == nil {
		err := watch(ctx, u.String(), action, *workoutID)
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "⚠️  %v (retrying in %s)\n", err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// watch streams until the connection drops or ctx ends. A pending action is
// sent once and then cleared so reconnects do not repeat it.
func watch(ctx context.Context, rawURL string, action *string, workoutID string) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", rawURL, err)
	}
	defer ws.Close()
	fmt.Printf("🔌 connected to %s\n", rawURL)

	var writeMu sync.Mutex
	send := func(msg *protocol.Message) error {
		data, err := msg.Bytes()
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteMessage(websocket.TextMessage, data)
	}

	if *action != "" {
		msg, err := protocol.NewControlMessage(*action, workoutID)
		if err != nil {
			return err
		}
		if err := send(msg); err != nil {
			return fmt.Errorf("send %s: %w", *action, err)
		}
		fmt.Printf("➡️  sent %s\n", *action)
		*action = ""
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if msg, err := protocol.NewPingMessage(fmt.Sprint(time.Now().UnixNano())); err == nil {
					send(msg)
				}
			case <-ctx.Done():
				writeMu.Lock()
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				writeMu.Unlock()
				ws.Close()
				return
			case <-stop:
				return
			}
		}
	}()

	var v view
	for {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		debug.Log("%s\n", data)
		if line, ok := v.describe(data); ok {
			fmt.Println(line)
		}
	}
}
