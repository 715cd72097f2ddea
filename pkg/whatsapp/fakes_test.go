package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/whatsapp-webhook-relay/internal/webhook"
)

type fakeAuthStore struct {
	mu     sync.Mutex
	loads  int
	saves  int
	closed bool
}

func (s *fakeAuthStore) Load(ctx context.Context) (*store.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return &store.Device{}, nil
}

func (s *fakeAuthStore) Save(ctx context.Context, device *store.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *fakeAuthStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeAuthStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type sentText struct {
	to   types.JID
	text string
}

type fakeConn struct {
	mu      sync.Mutex
	closed  bool
	sendErr error
	sent    []sentText
}

func (c *fakeConn) SendText(ctx context.Context, to types.JID, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.sent = append(c.sent, sentText{to: to, text: text})
	return "3EB0TEST", nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int
	sendErr  error
	sinks    []func(Event)
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, device *store.Device, sink func(Event)) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial refused")
	}
	conn := &fakeConn{sendErr: d.sendErr}
	d.sinks = append(d.sinks, sink)
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setFailures(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// emit publishes evt through the sink handed to the i-th successful dial.
func (d *fakeDialer) emit(i int, evt Event) {
	d.mu.Lock()
	sink := d.sinks[i]
	d.mu.Unlock()
	sink(evt)
}

type recordingForwarder struct {
	mu        sync.Mutex
	envelopes []webhook.Envelope
	err       error
}

func (f *recordingForwarder) Forward(ctx context.Context, envelope webhook.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, envelope)
	return f.err
}

func (f *recordingForwarder) forwarded() []webhook.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webhook.Envelope(nil), f.envelopes...)
}

func testConfig() Config {
	return Config{
		ClientName:  "Relay",
		SendTimeout: time.Second,
		Reconnect: ReconnectConfig{
			BaseDelay: time.Millisecond,
			MaxDelay:  5 * time.Millisecond,
		},
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *fakeDialer, *fakeAuthStore, *recordingForwarder) {
	t.Helper()
	dialer := &fakeDialer{}
	auth := &fakeAuthStore{}
	forwarder := &recordingForwarder{}
	m := NewManager(cfg, auth, dialer, forwarder)
	m.versions = nil
	t.Cleanup(func() { _ = m.Close() })
	return m, dialer, auth, forwarder
}

// openSession connects the manager and delivers the open event.
func openSession(t *testing.T, m *Manager, dialer *fakeDialer) {
	t.Helper()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	dialer.emit(dialer.dialCount()-1, ConnectionUpdate{Connection: ConnectionOpen})
}
