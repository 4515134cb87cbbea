// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/panelstat/pkg/r3status"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []message
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic, qos, retained, payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func testBoard() *r3status.Board {
	groups := r3status.Group([]r3status.AddressEntry{{Key: "fire_zone_1", Address: "102"}})
	return r3status.NewBoard(r3status.BuildChecklist(groups), r3status.MatchByIdentity)
}

func firePoll(board *r3status.Board) {
	agg := r3status.NewAggregate()
	agg.Record(r3status.Reading{Class: r3status.FireZone, Key: "fire_zone_1", Address: "102",
		Outcome: r3status.OutcomeOK, Value: 0x80, Conditions: r3status.Decode(0x80, r3status.FireZone)})
	board.Reconcile(agg, time.Now())
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublish(t *testing.T) {
	fc := &fakeClient{token: &fakeToken{}}
	p := newPublisher(Config{Topic: "site/panel", QoS: 1, Retained: true, Timeout: time.Second}, fc, quiet())

	board := testBoard()
	firePoll(board)
	require.NoError(t, p.Publish(board.Snapshot()))

	require.Len(t, fc.messages, 1)
	msg := fc.messages[0]
	assert.Equal(t, "site/panel", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var decoded struct {
		Summary r3status.Summary `json:"summary"`
		Rows    []r3status.Row   `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, 1, decoded.Summary.Observed)
	assert.Len(t, decoded.Rows, len(r3status.TableFor(r3status.FireZone)))
}

func TestPublish_Errors(t *testing.T) {
	snap := testBoard().Snapshot()

	p := newPublisher(Config{Topic: "t", Timeout: time.Second}, &fakeClient{token: &fakeToken{timeout: true}}, quiet())
	assert.ErrorContains(t, p.Publish(snap), "timed out")

	broken := errors.New("not connected")
	p = newPublisher(Config{Topic: "t", Timeout: time.Second}, &fakeClient{token: &fakeToken{err: broken}}, quiet())
	assert.ErrorIs(t, p.Publish(snap), broken)
}

func TestRun(t *testing.T) {
	fc := &fakeClient{token: &fakeToken{}}
	p := newPublisher(Config{Topic: "t", Timeout: time.Second}, fc, quiet())

	board := testBoard()
	updates, cancelSub := board.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, updates)
	}()

	firePoll(board)
	assert.Eventually(t, func() bool { return fc.count() == 1 }, time.Second, 5*time.Millisecond,
		"the initial unreconciled snapshot is skipped and the first cycle published")

	cancel()
	<-done
	cancelSub()

	p.Close()
	assert.True(t, fc.disconnected)
}

func TestConnect_Validation(t *testing.T) {
	_, err := Connect(Config{Topic: "t"}, nil)
	assert.Error(t, err)
	_, err = Connect(Config{Broker: "tcp://localhost:1883"}, nil)
	assert.Error(t, err)
}
