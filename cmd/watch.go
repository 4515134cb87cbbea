// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

var watchTUI bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the checklist of a running monitor over WebSocket",
	Long: `Connect to the /ws feed of a running monitor and show its checklist.

The remote monitor owns the bus; this command only renders the snapshots it
pushes after every cycle. If the connection drops it is retried with
exponential backoff (1s doubling up to 30s).

Examples:
  panelstat watch --url ws://panel-pc:5000/ws
  panelstat watch --url wss://panel-pc/ws --username admin`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchTUI, "tui", term.IsTerminal(int(os.Stdout.Fd())), "Use terminal UI (false for text mode)")
}

// feedManager handles the feed connection lifecycle and reconnection
type feedManager struct {
	dial func(ctx context.Context) (*websocket.Conn, error)
	send func(tea.Msg)

	mu   sync.RWMutex
	conn *websocket.Conn
}

func (fm *feedManager) getConn() *websocket.Conn {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.conn
}

func (fm *feedManager) setConn(conn *websocket.Conn) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.conn = conn
}

func runWatch(cmd *cobra.Command, args []string) error {
	if wsURL == "" {
		return errors.New("--url must be specified")
	}

	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fm := &feedManager{
		dial: func(ctx context.Context) (*websocket.Conn, error) {
			return OpenWebSocketConnection(ctx, wsURL, wsUsername, password, wsNoSSLVerify)
		},
	}

	conn, err := fm.dial(ctx)
	if err != nil {
		return err
	}
	fm.setConn(conn)

	source := fmt.Sprintf("WebSocket: %s", wsURL)

	if !watchTUI {
		fmt.Printf("Panelstat - Watch\n")
		fmt.Printf("%s\n", source)
		fmt.Printf("Press Ctrl+C to exit\n\n")
		fm.send = printFeedMsg
		fm.run(ctx)
		return nil
	}

	p := tea.NewProgram(initialModel("PANELSTAT - REMOTE CHECKLIST", source, nil, nil), tea.WithContext(ctx))
	fm.send = p.Send

	done := make(chan struct{})
	go func() {
		defer close(done)
		fm.run(ctx)
	}()

	_, err = p.Run()
	stop()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// printFeedMsg is the text-mode sink.
func printFeedMsg(msg tea.Msg) {
	switch msg := msg.(type) {
	case snapshotMsg:
		for _, r := range msg.Readings {
			fmt.Println(r3status.FormatReading(r))
		}
		fmt.Println(r3status.FormatSummary(msg.Summary))
		fmt.Println()
	case connectionLostMsg:
		fmt.Fprintf(os.Stderr, "Connection lost: %v\n", msg.err)
	case reconnectedMsg:
		fmt.Fprintf(os.Stderr, "Reconnected\n")
	}
}

// run reads the feed with automatic reconnection until ctx is done.
func (fm *feedManager) run(ctx context.Context) {
	for {
		err := fm.readFeed(ctx, fm.getConn())
		if ctx.Err() != nil {
			return
		}

		fm.send(connectionLostMsg{err: err})

		if !fm.reconnect(ctx) {
			return // Shutdown requested during reconnect
		}
	}
}

// readFeed forwards snapshots until the connection fails or ctx is done.
func (fm *feedManager) readFeed(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	for {
		var snap r3status.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			return err
		}
		fm.send(snapshotMsg(snap))
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (fm *feedManager) reconnect(ctx context.Context) bool {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := fm.dial(ctx)
		if err == nil {
			fm.setConn(conn)
			fm.send(reconnectedMsg{})
			return true
		}

		backoff = nextBackoff(backoff)
	}
}

// nextBackoff doubles the delay up to 30 seconds.
func nextBackoff(d time.Duration) time.Duration {
	const maxBackoff = 30 * time.Second
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
