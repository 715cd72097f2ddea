package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/metrics"
)

const maxLoggedBody = 256

// Engine posts envelopes to the webhook from a bounded queue. Delivery is
// at-most-once per attempt budget: failures are logged and dropped.
type Engine struct {
	cfg        Config
	httpClient *resty.Client
	queue      chan *deliveryTask
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type deliveryTask struct {
	id       string
	envelope Envelope
	queuedAt time.Time
}

func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()

	httpClient := resty.New()
	httpClient.SetTimeout(cfg.Timeout)
	httpClient.SetHeader("User-Agent", cfg.UserAgent)

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		cfg:        cfg,
		httpClient: httpClient,
		queue:      make(chan *deliveryTask, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		engine.wg.Add(1)
		go engine.worker()
	}

	return engine
}

// Forward queues envelope for delivery and returns without waiting for the
// POST. A full queue drops the envelope.
func (e *Engine) Forward(ctx context.Context, envelope Envelope) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}

	task := &deliveryTask{
		id:       uuid.NewString(),
		envelope: envelope,
		queuedAt: time.Now(),
	}

	select {
	case e.queue <- task:
		metrics.WebhookQueueLength.Set(float64(len(e.queue)))
		return nil
	default:
		metrics.WebhookDeliveries.WithLabelValues(string(DeliveryDropped)).Inc()
		log.Webhook(task.id, envelope.GroupID).Warn("Webhook queue is full, dropping message")
		return ErrQueueFull
	}
}

// Shutdown stops accepting envelopes and waits for queued ones until ctx is
// done, then abandons in-flight requests.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for task := range e.queue {
		metrics.WebhookQueueLength.Set(float64(len(e.queue)))
		e.deliver(task)
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	if e.ctx.Err() != nil {
		metrics.WebhookDeliveries.WithLabelValues(string(DeliveryDropped)).Inc()
		return
	}

	start := time.Now()
	defer func() {
		metrics.WebhookLatency.Observe(time.Since(start).Seconds())
	}()

	entry := log.Webhook(task.id, task.envelope.GroupID)

	payload, err := json.Marshal(task.envelope)
	if err != nil {
		entry.WithError(err).Error("Failed to encode webhook envelope")
		metrics.WebhookDeliveries.WithLabelValues(string(DeliveryFailed)).Inc()
		return
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryLimit; attempt++ {
		lastErr = e.post(task.id, payload)
		if lastErr == nil {
			metrics.WebhookDeliveries.WithLabelValues(string(DeliverySuccess)).Inc()
			entry.WithField("attempt", attempt).Debug("Webhook delivered")
			return
		}

		if attempt < e.cfg.RetryLimit {
			metrics.WebhookDeliveries.WithLabelValues(string(DeliveryRetrying)).Inc()
			if !e.sleep(time.Duration(attempt) * e.cfg.RetryDelay) {
				break
			}
		}
	}

	metrics.WebhookDeliveries.WithLabelValues(string(DeliveryFailed)).Inc()
	entry.WithError(lastErr).WithField("attempts", e.cfg.RetryLimit).Warn("Webhook delivery failed, message dropped")
}

func (e *Engine) post(deliveryID string, payload []byte) error {
	req := e.httpClient.R().
		SetContext(e.ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Webhook-Delivery", deliveryID).
		SetBody(payload)
	if e.cfg.Secret != "" {
		req.SetHeader("X-Webhook-Signature", Sign(payload, e.cfg.Secret))
	}

	resp, err := req.Post(e.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForwardFailed, err)
	}
	if !resp.IsSuccess() {
		body := resp.String()
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody]
		}
		return fmt.Errorf("%w: HTTP %d: %s", ErrForwardFailed, resp.StatusCode(), body)
	}
	return nil
}

func (e *Engine) sleep(d time.Duration) bool {
	if d <= 0 {
		return e.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// Sign returns the "sha256=<hex>" HMAC of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
