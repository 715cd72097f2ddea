package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/gdbrns/whatsapp-webhook-relay/internal/webhook"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/env"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/metrics"
)

const credentialSaveTimeout = 10 * time.Second

// Forwarder hands an inbound message to the webhook side.
type Forwarder interface {
	Forward(ctx context.Context, envelope webhook.Envelope) error
}

type Config struct {
	ClientName    string
	LogLevel      string
	ProxyURL      string
	QRTerminal    bool
	SendTimeout   time.Duration
	SendRateLimit float64
	Auth          AuthConfig
	Reconnect     ReconnectConfig
}

func LoadConfig() Config {
	return Config{
		// WHATSAPP_CLIENT_NAME: default "Relay", shown in the linked devices list
		ClientName: env.GetEnvStringOrDefault("WHATSAPP_CLIENT_NAME", "Relay"),
		// WHATSAPP_LOG_LEVEL: default "" keeps whatsmeow silent
		LogLevel: env.GetEnvStringOrDefault("WHATSAPP_LOG_LEVEL", ""),
		ProxyURL: env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),
		// QR_TERMINAL: default true
		QRTerminal: env.GetEnvBoolOrDefault("QR_TERMINAL", true),
		// SEND_TIMEOUT: default "30s"
		SendTimeout: env.GetEnvDurationOrDefault("SEND_TIMEOUT", 30*time.Second),
		// SEND_RATE_LIMIT: default 0 (unlimited), messages per second
		SendRateLimit: env.GetEnvFloatOrDefault("SEND_RATE_LIMIT", 0),
		Auth: AuthConfig{
			// AUTH_STATE_DRIVER: default "sqlite", or "postgres"
			Driver: env.GetEnvStringOrDefault("AUTH_STATE_DRIVER", "sqlite"),
			// AUTH_STATE_DIR: default "auth_info"
			Dir: env.GetEnvStringOrDefault("AUTH_STATE_DIR", "auth_info"),
			URI: env.GetEnvStringOrDefault("AUTH_STATE_URI", ""),
		},
		Reconnect: ReconnectConfig{
			// RECONNECT_MAX_ATTEMPTS: default 0 (unbounded)
			MaxAttempts: env.GetEnvIntOrDefault("RECONNECT_MAX_ATTEMPTS", 0),
			BaseDelay:   env.GetEnvDurationOrDefault("RECONNECT_BACKOFF_BASE", 2*time.Second),
			MaxDelay:    env.GetEnvDurationOrDefault("RECONNECT_BACKOFF_MAX", 30*time.Second),
		},
	}
}

type Status struct {
	State      string     `json:"state"`
	Connected  bool       `json:"connected"`
	JID        string     `json:"jid,omitempty"`
	Reconnects int64      `json:"reconnects"`
	QRPending  bool       `json:"qr_pending"`
	LastQRAt   *time.Time `json:"last_qr_at,omitempty"`
}

// Manager owns the single WhatsApp session of the relay.
type Manager struct {
	cfg        Config
	auth       AuthStore
	dialer     Dialer
	forwarder  Forwarder
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	versions   *VersionRefresher
	qrOut      io.Writer

	ctx    context.Context
	cancel context.CancelFunc

	connectGroup singleflight.Group
	connectMu    sync.Mutex
	reconnectWG  sync.WaitGroup

	mu         sync.RWMutex
	conn       Conn
	generation uint64
	closedGen  uint64
	state      State
	stopped    bool
	jid        string
	latestQR   string
	lastQRAt   time.Time
	reconnects int64
}

func NewManager(cfg Config, auth AuthStore, dialer Dialer, forwarder Forwarder) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		auth:       auth,
		dialer:     dialer,
		forwarder:  forwarder,
		dispatcher: NewDispatcher(),
		versions:   NewVersionRefresher(10 * time.Minute),
		qrOut:      os.Stdout,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateDisconnected,
	}
	if cfg.SendRateLimit > 0 {
		burst := int(cfg.SendRateLimit)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.SendRateLimit), burst)
	}

	m.dispatcher.Subscribe(KindConnectionUpdate, m.onConnectionUpdate)
	m.dispatcher.Subscribe(KindCredentialsUpdate, m.onCredentialsUpdate)
	m.dispatcher.Subscribe(KindMessagesUpsert, m.onMessagesUpsert)
	return m
}

func (m *Manager) Versions() *VersionRefresher {
	return m.versions
}

// Connect loads the credential state and dials a fresh client session. It
// returns once the client is constructed; the open event marks it usable.
// Concurrent calls share one attempt.
func (m *Manager) Connect(ctx context.Context) error {
	_, err, _ := m.connectGroup.Do("connect", func() (interface{}, error) {
		return nil, m.connect(ctx)
	})
	return err
}

func (m *Manager) connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state == StateTerminated {
		m.mu.Unlock()
		return ErrTerminated
	}
	previous := m.conn
	m.conn = nil
	m.generation++
	generation := m.generation
	m.state = StateConnecting
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	log.Session(StateConnecting.String()).Info("Connecting to WhatsApp")

	device, err := m.auth.Load(ctx)
	if err != nil {
		m.connectFailed(generation)
		return fmt.Errorf("load auth state: %w", err)
	}

	conn, err := m.dialer.Dial(ctx, device, m.sink(generation))
	if err != nil {
		m.connectFailed(generation)
		return fmt.Errorf("dial WhatsApp: %w", err)
	}

	m.mu.Lock()
	if m.stopped || generation != m.generation || m.state == StateTerminated {
		m.mu.Unlock()
		conn.Close()
		return ErrManagerClosed
	}
	m.conn = conn
	if device != nil && device.ID != nil {
		m.jid = device.ID.ToNonAD().String()
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) connectFailed(generation uint64) {
	m.mu.Lock()
	if generation == m.generation && m.state == StateConnecting {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
}

// sink stamps connection updates with the generation of the handle that
// produced them before publishing.
func (m *Manager) sink(generation uint64) func(Event) {
	return func(evt Event) {
		if update, ok := evt.(ConnectionUpdate); ok {
			update.Generation = generation
			evt = update
		}
		m.dispatcher.Publish(evt)
	}
}

func (m *Manager) onConnectionUpdate(evt Event) {
	update, ok := evt.(ConnectionUpdate)
	if !ok {
		return
	}
	if update.QR != "" {
		m.onQR(update)
	}
	switch update.Connection {
	case ConnectionOpen:
		m.onOpen(update)
	case ConnectionClose:
		m.onClose(update)
	}
}

func (m *Manager) onQR(update ConnectionUpdate) {
	m.mu.Lock()
	if update.Generation != m.generation || m.stopped {
		m.mu.Unlock()
		return
	}
	m.latestQR = update.QR
	m.lastQRAt = time.Now()
	m.mu.Unlock()

	log.Session(StateConnecting.String()).Info("Scan the QR code below with WhatsApp > Linked devices")
	if m.cfg.QRTerminal {
		RenderQRTerminal(m.qrOut, update.QR)
	}
}

func (m *Manager) onOpen(update ConnectionUpdate) {
	m.mu.Lock()
	if update.Generation != m.generation || m.stopped || m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.latestQR = ""
	m.mu.Unlock()

	metrics.SessionConnected.Set(1)
	log.Session(StateConnected.String()).Info("WhatsApp connection opened")
}

func (m *Manager) onClose(update ConnectionUpdate) {
	m.mu.Lock()
	if update.Generation != m.generation || update.Generation == m.closedGen || m.stopped || m.state == StateTerminated {
		m.mu.Unlock()
		log.Session("").WithField("cause", update.Cause.String()).Debug("Ignoring close event from an inactive handle")
		return
	}
	m.closedGen = update.Generation
	metrics.SessionConnected.Set(0)

	entry := log.Session(m.state.String()).WithField("cause", update.Cause.String())
	if update.Detail != "" {
		entry = entry.WithField("detail", update.Detail)
	}

	if update.Cause.IsTerminal() {
		conn := m.conn
		m.conn = nil
		m.jid = ""
		m.state = StateTerminated
		m.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		entry.Error("WhatsApp session logged out, delete the auth state and restart to pair again")
		return
	}

	m.state = StateConnecting
	m.reconnects++
	m.reconnectWG.Add(1)
	m.mu.Unlock()

	metrics.Reconnects.WithLabelValues(update.Cause.String()).Inc()
	entry.Warn("WhatsApp connection closed, reconnecting")
	go m.reconnect(update.Generation, update.Cause)
}

func (m *Manager) reconnect(generation uint64, cause DisconnectCause) {
	defer m.reconnectWG.Done()

	m.mu.RLock()
	stale := generation != m.generation
	m.mu.RUnlock()
	if stale {
		return
	}

	if cause == CauseClientOutdated && m.versions != nil {
		if status, _, err := m.versions.Refresh(m.ctx, true); err != nil {
			log.Session(StateConnecting.String()).WithError(err).Warn("Failed to refresh WhatsApp Web version")
		} else {
			log.Session(StateConnecting.String()).Info("WhatsApp Web version refreshed to " + status.CurrentVersion)
		}
	}

	err := retryConnect(m.ctx, m.cfg.Reconnect, func() error {
		err := m.connect(m.ctx)
		if errors.Is(err, ErrManagerClosed) || errors.Is(err, ErrTerminated) {
			return backoffPermanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		log.Session(StateConnecting.String()).WithError(err).Warn(fmt.Sprintf("Reconnect failed, retrying in %s", wait.Round(time.Millisecond)))
	})
	if err != nil && !errors.Is(err, ErrManagerClosed) && m.ctx.Err() == nil {
		log.Session(StateDisconnected.String()).WithError(err).Error("Giving up reconnecting to WhatsApp")
	}
}

func (m *Manager) onCredentialsUpdate(evt Event) {
	update, ok := evt.(CredentialsUpdate)
	if !ok || update.Device == nil {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, credentialSaveTimeout)
	defer cancel()
	if err := m.auth.Save(ctx, update.Device); err != nil {
		log.Session("").WithError(err).Error("Failed to save WhatsApp credentials")
		return
	}

	if update.Device.ID != nil {
		m.mu.Lock()
		m.jid = update.Device.ID.ToNonAD().String()
		m.mu.Unlock()
	}
}

func (m *Manager) onMessagesUpsert(evt Event) {
	upsert, ok := evt.(MessagesUpsert)
	if !ok || len(upsert.Messages) == 0 {
		return
	}

	// only the first entry of a batch is relayed
	entry := upsert.Messages[0]
	if reason := skipReason(upsert.Type, entry); reason != "" {
		metrics.MessagesReceived.WithLabelValues(reason).Inc()
		return
	}

	text := messageText(entry.Message)
	if text == "" {
		metrics.MessagesReceived.WithLabelValues("no_text").Inc()
		return
	}

	envelope := webhook.Envelope{
		GroupID:  entry.Chat.String(),
		SenderID: senderID(entry),
		Message:  text,
		PushName: entry.PushName,
	}
	if m.forwarder == nil {
		return
	}
	if err := m.forwarder.Forward(m.ctx, envelope); err != nil {
		metrics.MessagesReceived.WithLabelValues("forward_failed").Inc()
		log.Webhook("", envelope.GroupID).WithError(err).Warn("Failed to forward message")
		return
	}
	metrics.MessagesReceived.WithLabelValues("forwarded").Inc()
}

func skipReason(kind UpsertType, entry MessageEntry) string {
	switch {
	case entry.Message == nil:
		return "no_payload"
	case kind != UpsertNotify:
		return "not_notify"
	case entry.Chat == types.StatusBroadcastJID:
		return "status_broadcast"
	case entry.IsFromMe:
		return "from_me"
	}
	return ""
}

func messageText(msg *waE2E.Message) string {
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}

// senderID is the participant in groups and the chat itself otherwise.
func senderID(entry MessageEntry) string {
	if entry.Chat.Server == types.GroupServer && !entry.Sender.IsEmpty() {
		return entry.Sender.ToNonAD().String()
	}
	return entry.Chat.String()
}

// Send delivers a text message through the active session.
func (m *Manager) Send(ctx context.Context, destination string, text string) (string, error) {
	m.mu.RLock()
	conn := m.conn
	state := m.state
	m.mu.RUnlock()

	if conn == nil || state != StateConnected || !conn.IsConnected() {
		metrics.MessagesSent.WithLabelValues("not_connected").Inc()
		return "", ErrNotConnected
	}

	to, err := ComposeJID(destination)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("invalid_destination").Inc()
		return "", err
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			metrics.MessagesSent.WithLabelValues("failed").Inc()
			return "", &SendFailedError{Cause: err}
		}
	}

	sendCtx := ctx
	if m.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, m.cfg.SendTimeout)
		defer cancel()
	}

	id, err := conn.SendText(sendCtx, to, text)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("failed").Inc()
		return "", &SendFailedError{Cause: err}
	}
	metrics.MessagesSent.WithLabelValues("sent").Inc()
	return id, nil
}

func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected && m.conn != nil
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:      m.state.String(),
		Connected:  m.state == StateConnected && m.conn != nil,
		JID:        m.jid,
		Reconnects: m.reconnects,
		QRPending:  m.latestQR != "",
	}
	if !m.lastQRAt.IsZero() {
		t := m.lastQRAt
		status.LastQRAt = &t
	}
	return status
}

// LatestQR returns the pairing code waiting to be scanned, if any.
func (m *Manager) LatestQR() (string, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestQR, m.lastQRAt, m.latestQR != ""
}

// Close drops the session, stops reconnecting and releases the auth store.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	conn := m.conn
	m.conn = nil
	if m.state != StateTerminated {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		conn.Close()
	}
	m.reconnectWG.Wait()
	metrics.SessionConnected.Set(0)

	if m.auth == nil {
		return nil
	}
	return m.auth.Close()
}
