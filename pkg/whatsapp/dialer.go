package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
)

// Conn is one live client session.
type Conn interface {
	SendText(ctx context.Context, to types.JID, text string) (string, error)
	IsConnected() bool
	Close()
}

// Dialer builds a client session for device. Every event it produces goes to
// sink until the returned Conn is closed.
type Dialer interface {
	Dial(ctx context.Context, device *store.Device, sink func(Event)) (Conn, error)
}

type WhatsmeowDialer struct {
	ClientName string
	LogLevel   string
	ProxyURL   string
}

func (d *WhatsmeowDialer) Dial(ctx context.Context, device *store.Device, sink func(Event)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store.DeviceProps.Os = proto.String(d.ClientName)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	client := whatsmeow.NewClient(device, log.WhatsApp("Client", d.LogLevel))
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	if len(d.ProxyURL) > 0 {
		if err := client.SetProxyAddress(d.ProxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := &whatsmeowConn{client: client, cancel: cancel}

	client.AddEventHandler(func(raw interface{}) {
		if evt := translate(raw, client.Store); evt != nil {
			sink(evt)
		}
	})

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(connCtx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("open QR channel: %w", err)
		}
		go relayQR(connCtx, qrChan, sink)
	}

	if err := client.Connect(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}

type whatsmeowConn struct {
	client *whatsmeow.Client
	cancel context.CancelFunc
}

func (c *whatsmeowConn) SendText(ctx context.Context, to types.JID, text string) (string, error) {
	msgExtra := whatsmeow.SendRequestExtra{ID: c.client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}
	resp, err := c.client.SendMessage(ctx, to, msgContent, msgExtra)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *whatsmeowConn) IsConnected() bool {
	return c.client.IsConnected() && c.client.IsLoggedIn()
}

func (c *whatsmeowConn) Close() {
	c.cancel()
	c.client.RemoveEventHandlers()
	c.client.Disconnect()
}

func relayQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem, sink func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			if evt := translateQR(item); evt != nil {
				sink(evt)
			}
		}
	}
}

func translateQR(item whatsmeow.QRChannelItem) Event {
	switch {
	case item.Event == "code":
		return ConnectionUpdate{QR: item.Code}
	case item.Event == whatsmeow.QRChannelTimeout.Event:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectFailure, Detail: "QR pairing timed out"}
	case item.Event == whatsmeow.QRChannelClientOutdated.Event:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseClientOutdated, Detail: "client version is outdated for QR pairing"}
	case item.Event == whatsmeow.QRChannelErrUnexpectedEvent.Event:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectFailure, Detail: "QR channel entered an unexpected state"}
	case item.Event == whatsmeow.QRChannelScannedWithoutMultidevice.Event:
		log.Session(StateConnecting.String()).Warn("QR scanned without multi-device enabled, waiting for the next code")
		return nil
	case item.Event == "error":
		detail := "QR channel reported an unspecified error"
		if item.Error != nil {
			detail = item.Error.Error()
		}
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectFailure, Detail: detail}
	}
	return nil
}

// translate maps a whatsmeow event onto the relay event set. Events the relay
// does not react to map to nil.
func translate(raw interface{}, device *store.Device) Event {
	switch e := raw.(type) {
	case *events.Connected:
		return ConnectionUpdate{Connection: ConnectionOpen}
	case *events.Disconnected:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionLost}
	case *events.StreamReplaced:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectionReplaced}
	case *events.ConnectFailure:
		detail := fmt.Sprintf("reason=%s", e.Reason)
		if strings.TrimSpace(e.Message) != "" {
			detail += ", message=" + e.Message
		}
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseConnectFailure, Detail: detail}
	case *events.TemporaryBan:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseTemporaryBan, Detail: e.String()}
	case *events.ClientOutdated:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseClientOutdated}
	case *events.LoggedOut:
		return ConnectionUpdate{Connection: ConnectionClose, Cause: CauseLoggedOut, Detail: e.Reason.String()}
	case *events.PairSuccess:
		return CredentialsUpdate{Device: device}
	case *events.Message:
		return MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{messageEntry(e.Info, e.Message)}}
	case *events.UndecryptableMessage:
		return MessagesUpsert{Type: UpsertNotify, Messages: []MessageEntry{messageEntry(e.Info, nil)}}
	case *events.HistorySync:
		return MessagesUpsert{Type: UpsertAppend}
	case *events.KeepAliveTimeout:
		log.Session(StateConnected.String()).Warn(fmt.Sprintf("Client keepalive timeout, errors=%d", e.ErrorCount))
	}
	return nil
}

func messageEntry(info types.MessageInfo, msg *waE2E.Message) MessageEntry {
	return MessageEntry{
		ID:       info.ID,
		Chat:     info.Chat,
		Sender:   info.Sender,
		PushName: info.PushName,
		IsFromMe: info.IsFromMe,
		Message:  msg,
	}
}
