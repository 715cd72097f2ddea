package whatsapp

import (
	"fmt"
	"sync"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DisconnectCause classifies why a connection closed.
type DisconnectCause int

const (
	CauseUnknown DisconnectCause = iota
	CauseConnectionLost
	CauseConnectionReplaced
	CauseConnectFailure
	CauseTemporaryBan
	CauseClientOutdated
	CauseLoggedOut
)

func (c DisconnectCause) String() string {
	switch c {
	case CauseConnectionLost:
		return "connection_lost"
	case CauseConnectionReplaced:
		return "connection_replaced"
	case CauseConnectFailure:
		return "connect_failure"
	case CauseTemporaryBan:
		return "temporary_ban"
	case CauseClientOutdated:
		return "client_outdated"
	case CauseLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the session must not be reconnected.
func (c DisconnectCause) IsTerminal() bool {
	return c == CauseLoggedOut
}

type EventKind int

const (
	KindConnectionUpdate EventKind = iota
	KindCredentialsUpdate
	KindMessagesUpsert
)

type Event interface {
	Kind() EventKind
}

type ConnectionStatus string

const (
	ConnectionOpen  ConnectionStatus = "open"
	ConnectionClose ConnectionStatus = "close"
)

// ConnectionUpdate either carries a pairing code, a lifecycle change, or both.
// Generation identifies the handle that produced it and is stamped by the
// Manager.
type ConnectionUpdate struct {
	Connection ConnectionStatus
	QR         string
	Cause      DisconnectCause
	Detail     string
	Generation uint64
}

func (ConnectionUpdate) Kind() EventKind { return KindConnectionUpdate }

type CredentialsUpdate struct {
	Device *store.Device
}

func (CredentialsUpdate) Kind() EventKind { return KindCredentialsUpdate }

type UpsertType string

const (
	UpsertNotify UpsertType = "notify"
	UpsertAppend UpsertType = "append"
)

// MessageEntry is one message of an upsert batch. Message is nil when the
// payload could not be decrypted.
type MessageEntry struct {
	ID       string
	Chat     types.JID
	Sender   types.JID
	PushName string
	IsFromMe bool
	Message  *waE2E.Message
}

type MessagesUpsert struct {
	Type     UpsertType
	Messages []MessageEntry
}

func (MessagesUpsert) Kind() EventKind { return KindMessagesUpsert }

type Handler func(Event)

// Dispatcher fans events out to subscribers. Handlers for a kind run in
// registration order and Publish calls never overlap.
type Dispatcher struct {
	publishMu sync.Mutex

	mu       sync.RWMutex
	handlers map[EventKind][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventKind][]Handler)}
}

func (d *Dispatcher) Subscribe(kind EventKind, handler Handler) {
	d.mu.Lock()
	d.handlers[kind] = append(d.handlers[kind], handler)
	d.mu.Unlock()
}

func (d *Dispatcher) Publish(evt Event) {
	if evt == nil {
		return
	}

	d.publishMu.Lock()
	defer d.publishMu.Unlock()

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[evt.Kind()]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		d.call(handler, evt)
	}
}

func (d *Dispatcher) call(handler Handler, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Session("").Error(fmt.Sprintf("event handler panicked: %v", rec))
		}
	}()
	handler(evt)
}
