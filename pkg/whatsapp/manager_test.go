package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/whatsapp-webhook-relay/internal/webhook"
)

func TestManager_ConnectThenOpen(t *testing.T) {
	req := require.New(t)

	// Given a fresh manager
	m, dialer, auth, _ := newTestManager(t, testConfig())
	req.Equal(StateDisconnected.String(), m.Status().State)

	// When it connects
	req.NoError(m.Connect(context.Background()))

	// Then the credential state is loaded and the session is connecting
	req.Equal(1, dialer.dialCount())
	req.Equal(1, auth.loads)
	req.Equal(StateConnecting.String(), m.Status().State)
	req.False(m.Connected())

	// When the open event arrives
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionOpen})

	// Then the session is usable
	req.True(m.Connected())
	req.Equal(StateConnected.String(), m.Status().State)
}

func TestManager_RecoverableCloseReconnectsOncePerEvent(t *testing.T) {
	causes := []DisconnectCause{
		CauseConnectionLost,
		CauseConnectionReplaced,
		CauseConnectFailure,
		CauseTemporaryBan,
		CauseUnknown,
	}
	for _, cause := range causes {
		t.Run(cause.String(), func(t *testing.T) {
			req := require.New(t)

			// Given an open session
			m, dialer, _, _ := newTestManager(t, testConfig())
			openSession(t, m, dialer)

			// When the connection closes
			dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: cause})
			m.reconnectWG.Wait()

			// Then exactly one new connection is dialled and the old one is dropped
			req.Equal(2, dialer.dialCount())
			req.True(dialer.conn(0).isClosed())
			req.Equal(int64(1), m.Status().Reconnects)

			// When the replacement closes as well
			dialer.emit(1, ConnectionUpdate{Connection: ConnectionClose, Cause: cause})
			m.reconnectWG.Wait()

			// Then one more attempt is made
			req.Equal(3, dialer.dialCount())
		})
	}
}

func TestManager_DuplicateCloseFromSameHandleReconnectsOnce(t *testing.T) {
	req := require.New(t)

	// Given an open session
	m, dialer, _, _ := newTestManager(t, testConfig())
	openSession(t, m, dialer)

	// When the same handle reports two close events
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectFailure})
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionLost})
	m.reconnectWG.Wait()

	// Then a single reconnect happens
	req.Equal(2, dialer.dialCount())

	// And a late close from the replaced handle is ignored
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionLost})
	m.reconnectWG.Wait()
	req.Equal(2, dialer.dialCount())
}

func TestManager_LoggedOutIsTerminal(t *testing.T) {
	req := require.New(t)

	// Given an open session
	m, dialer, _, _ := newTestManager(t, testConfig())
	openSession(t, m, dialer)

	// When the account logs the device out
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseLoggedOut})
	m.reconnectWG.Wait()

	// Then no reconnect is attempted and the handle is gone
	req.Equal(1, dialer.dialCount())
	req.True(dialer.conn(0).isClosed())
	req.Equal(StateTerminated.String(), m.Status().State)
	req.False(m.Connected())

	// And the manager refuses to connect again
	req.ErrorIs(m.Connect(context.Background()), ErrTerminated)
	req.Equal(1, dialer.dialCount())

	_, err := m.Send(context.Background(), "5511999999999@s.whatsapp.net", "hi")
	req.ErrorIs(err, ErrNotConnected)
}

func TestManager_NoReconnectAfterClose(t *testing.T) {
	req := require.New(t)

	// Given an open session that is shut down
	m, dialer, auth, _ := newTestManager(t, testConfig())
	openSession(t, m, dialer)
	req.NoError(m.Close())

	// When the dropped connection reports a close
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionLost})

	// Then nothing is dialled and the auth store is released
	req.Equal(1, dialer.dialCount())
	req.True(auth.closed)
	req.ErrorIs(m.Connect(context.Background()), ErrManagerClosed)
}

func TestManager_ReconnectRetriesFailedDials(t *testing.T) {
	req := require.New(t)

	// Given an open session whose next two dials fail
	m, dialer, _, _ := newTestManager(t, testConfig())
	openSession(t, m, dialer)
	dialer.setFailures(2)

	// When the connection drops
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionLost})
	m.reconnectWG.Wait()

	// Then the reconnect backs off until a dial succeeds
	req.Equal(4, dialer.dialCount())
	req.Equal(StateConnecting.String(), m.Status().State)

	dialer.emit(1, ConnectionUpdate{Connection: ConnectionOpen})
	req.True(m.Connected())
}

func TestManager_ReconnectStopsAtMaxAttempts(t *testing.T) {
	req := require.New(t)

	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 2

	// Given an open session that cannot be re-dialled
	m, dialer, _, _ := newTestManager(t, cfg)
	openSession(t, m, dialer)
	dialer.setFailures(10)

	// When the connection drops
	dialer.emit(0, ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionLost})
	m.reconnectWG.Wait()

	// Then only the configured number of attempts is made
	req.Equal(3, dialer.dialCount())
	req.Equal(StateDisconnected.String(), m.Status().State)
}

func TestManager_CredentialsSavedOnEveryUpdate(t *testing.T) {
	req := require.New(t)

	m, dialer, auth, _ := newTestManager(t, testConfig())
	req.NoError(m.Connect(context.Background()))

	device := &store.Device{}
	dialer.emit(0, CredentialsUpdate{Device: device})
	dialer.emit(0, CredentialsUpdate{Device: device})

	req.Equal(2, auth.saveCount())
}

func TestManager_QRCodeIsKeptUntilOpen(t *testing.T) {
	req := require.New(t)

	m, dialer, _, _ := newTestManager(t, testConfig())
	req.NoError(m.Connect(context.Background()))

	dialer.emit(0, ConnectionUpdate{QR: "2@pairing-code"})

	code, at, ok := m.LatestQR()
	req.True(ok)
	req.Equal("2@pairing-code", code)
	req.False(at.IsZero())
	req.True(m.Status().QRPending)

	dialer.emit(0, ConnectionUpdate{Connection: ConnectionOpen})

	_, _, ok = m.LatestQR()
	req.False(ok)
}

func TestManager_MessagesUpsert(t *testing.T) {
	chat := types.NewJID("5511999999999", types.DefaultUserServer)
	group := types.NewJID("120363025246125486", types.GroupServer)
	participant := types.JID{User: "5511888888888", Server: types.DefaultUserServer, Device: 3}

	conversation := &waE2E.Message{Conversation: proto.String("hello there")}
	extended := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("quoted reply")}}
	imageOnly := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}

	tests := []struct {
		name     string
		upsert   MessagesUpsert
		expected []webhook.Envelope
	}{
		{
			name: "conversation is forwarded verbatim",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: chat, Sender: chat, PushName: "Ana", Message: conversation},
			}},
			expected: []webhook.Envelope{
				{GroupID: chat.String(), SenderID: chat.String(), Message: "hello there", PushName: "Ana"},
			},
		},
		{
			name: "extended text is forwarded verbatim",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: chat, Sender: chat, Message: extended},
			}},
			expected: []webhook.Envelope{
				{GroupID: chat.String(), SenderID: chat.String(), Message: "quoted reply"},
			},
		},
		{
			name: "group messages carry the participant",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: group, Sender: participant, PushName: "Bia", Message: conversation},
			}},
			expected: []webhook.Envelope{
				{GroupID: group.String(), SenderID: "5511888888888@s.whatsapp.net", Message: "hello there", PushName: "Bia"},
			},
		},
		{
			name: "only the first entry is relayed",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: chat, Sender: chat, Message: conversation},
				{Chat: chat, Sender: chat, Message: extended},
			}},
			expected: []webhook.Envelope{
				{GroupID: chat.String(), SenderID: chat.String(), Message: "hello there"},
			},
		},
		{
			name: "own messages are skipped",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: chat, Sender: chat, IsFromMe: true, Message: conversation},
			}},
		},
		{
			name: "status broadcast is skipped",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: types.StatusBroadcastJID, Sender: chat, Message: conversation},
			}},
		},
		{
			name: "non notify batches are skipped",
			upsert: MessagesUpsert{Type: UpsertAppend, Messages: []MessageEntry{
				{Chat: chat, Sender: chat, Message: conversation},
			}},
		},
		{
			name: "entries without payload are skipped",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: chat, Sender: chat},
			}},
		},
		{
			name: "entries without text are skipped",
			upsert: MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
				{Chat: chat, Sender: chat, Message: imageOnly},
			}},
		},
		{
			name:   "empty batches are ignored",
			upsert: MessagesUpsert{Type: UpsertNotify},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)

			m, dialer, _, forwarder := newTestManager(t, testConfig())
			openSession(t, m, dialer)

			dialer.emit(0, tt.upsert)

			if tt.expected == nil {
				req.Empty(forwarder.forwarded())
				return
			}
			req.Equal(tt.expected, forwarder.forwarded())
		})
	}
}

func TestManager_ForwardFailureIsContained(t *testing.T) {
	req := require.New(t)

	m, dialer, _, forwarder := newTestManager(t, testConfig())
	forwarder.err = webhook.ErrForwardFailed
	openSession(t, m, dialer)

	chat := types.NewJID("5511999999999", types.DefaultUserServer)
	req.NotPanics(func() {
		dialer.emit(0, MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{
			{Chat: chat, Sender: chat, Message: &waE2E.Message{Conversation: proto.String("hi")}},
		}})
	})
	req.Len(forwarder.forwarded(), 1)
	req.True(m.Connected())
}

func TestManager_Send(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		m, _, _, _ := newTestManager(t, testConfig())

		_, err := m.Send(context.Background(), "5511999999999@s.whatsapp.net", "hi")
		require.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("connecting session", func(t *testing.T) {
		m, _, _, _ := newTestManager(t, testConfig())
		require.NoError(t, m.Connect(context.Background()))

		_, err := m.Send(context.Background(), "5511999999999@s.whatsapp.net", "hi")
		require.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("invalid destination", func(t *testing.T) {
		m, dialer, _, _ := newTestManager(t, testConfig())
		openSession(t, m, dialer)

		_, err := m.Send(context.Background(), "not a number", "hi")
		require.ErrorIs(t, err, ErrInvalidDestination)
	})

	t.Run("delivered", func(t *testing.T) {
		req := require.New(t)
		m, dialer, _, _ := newTestManager(t, testConfig())
		openSession(t, m, dialer)

		id, err := m.Send(context.Background(), "5511999999999@s.whatsapp.net", "hi")
		req.NoError(err)
		req.Equal("3EB0TEST", id)

		conn := dialer.conn(0)
		req.Len(conn.sent, 1)
		req.Equal(types.NewJID("5511999999999", types.DefaultUserServer), conn.sent[0].to)
		req.Equal("hi", conn.sent[0].text)
	})

	t.Run("client failure", func(t *testing.T) {
		req := require.New(t)
		m, dialer, _, _ := newTestManager(t, testConfig())
		cause := errors.New("server returned error 479")
		dialer.sendErr = cause
		openSession(t, m, dialer)

		_, err := m.Send(context.Background(), "5511999999999", "hi")
		req.ErrorIs(err, ErrSendFailed)
		req.ErrorIs(err, cause)

		var sendErr *SendFailedError
		req.True(errors.As(err, &sendErr))
		req.Equal(cause, sendErr.Cause)
	})
}

func TestManager_SendRateLimited(t *testing.T) {
	req := require.New(t)

	cfg := testConfig()
	cfg.SendRateLimit = 1
	m, dialer, _, _ := newTestManager(t, cfg)
	openSession(t, m, dialer)

	_, err := m.Send(context.Background(), "5511999999999", "first")
	req.NoError(err)

	// the bucket is empty, a cancelled caller gives up waiting
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Send(ctx, "5511999999999", "second")
	req.ErrorIs(err, ErrSendFailed)
}
