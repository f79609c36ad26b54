// Package webhook delivers governance event notifications over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mutgate-project/mutgate/pkg/config"
	"github.com/mutgate-project/mutgate/pkg/logging"
	"github.com/mutgate-project/mutgate/pkg/model"
)

// EventType represents the type of governance event that can trigger webhooks.
type EventType string

const (
	EventCheckpointCreated  EventType = "checkpoint.created"
	EventCheckpointPending  EventType = "checkpoint.pending"
	EventCheckpointApproved EventType = "checkpoint.approved"
	EventCheckpointRejected EventType = "checkpoint.rejected"
	EventMutationExecuted   EventType = "mutation.executed"
	EventMutationRolledBack EventType = "mutation.rolled_back"
	EventQuotaThreshold     EventType = "quota.threshold"
)

// Event is the payload sent to webhook destinations.
type Event struct {
	Event        EventType      `json:"event"`
	Timestamp    string         `json:"timestamp"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	Resources    []string       `json:"resources,omitempty"`
	State        string         `json:"state,omitempty"`
	Principal    string         `json:"principal,omitempty"`
	Usage        int64          `json:"usage,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Hook is a single webhook destination. An empty Events list matches
// every event.
type Hook struct {
	URL    string
	Secret string
	Events []EventType
}

// Options tunes webhook delivery.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	QueueSize  int
	Timeout    time.Duration
	Logger     *logging.Logger
}

// Client fans governance events out to configured hooks. Events are
// queued and delivered by a background worker; delivery failures are
// logged and never fail the operation that produced the event.
type Client struct {
	hooks      []Hook
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *logging.Logger

	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type job struct {
	event Event
	hook  Hook
}

// NewClient creates a webhook client and starts its delivery worker.
// A client with no hooks is valid and drops every event.
func NewClient(hooks []Hook, opts Options) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.LevelInfo)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hooks:      hooks,
		http:       &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		log:        log.WithFields(map[string]any{"component": "webhook"}),
		queue:      make(chan *job, opts.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.wg.Add(1)
	go c.worker()
	return c
}

// FromConfig converts configured hook entries into delivery hooks.
func FromConfig(hooks []config.HookConfig) []Hook {
	out := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		hook := Hook{URL: h.URL, Secret: h.Secret}
		for _, e := range h.Events {
			hook.Events = append(hook.Events, EventType(e))
		}
		out = append(out, hook)
	}
	return out
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			for len(c.queue) > 0 {
				c.deliver(<-c.queue)
			}
			return
		case j := <-c.queue:
			c.deliver(j)
		}
	}
}

// Notify queues an event for every matching hook. Never blocks: when
// the queue is full the event is dropped with a warning.
func (c *Client) Notify(event Event) {
	if len(c.hooks) == 0 {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	for _, hook := range c.hooks {
		if !matchesEvent(hook, event.Event) {
			continue
		}
		select {
		case c.queue <- &job{event: event, hook: hook}:
		default:
			c.log.Warn("webhook queue full, dropping event", map[string]any{
				"event": string(event.Event),
				"url":   hook.URL,
			})
		}
	}
}

// NotifyCheckpoint queues an event describing a checkpoint state change.
func (c *Client) NotifyCheckpoint(eventType EventType, cp *model.Checkpoint, principal string) {
	c.Notify(Event{
		Event:        eventType,
		CheckpointID: cp.ID.String(),
		Resources:    cp.AffectedResources,
		State:        string(cp.State),
		Principal:    principal,
	})
}

// NotifyQuotaThreshold queues a quota.threshold event.
func (c *Client) NotifyQuotaThreshold(used, softThreshold int64, checkpointID model.CheckpointID) {
	c.Notify(Event{
		Event:        EventQuotaThreshold,
		CheckpointID: checkpointID.String(),
		Usage:        used,
		Metadata:     map[string]any{"soft_threshold": softThreshold},
	})
}

func (c *Client) deliver(j *job) {
	if err := c.send(j); err != nil {
		c.log.ErrorErr("webhook delivery failed", err, map[string]any{
			"event": string(j.event.Event),
			"url":   j.hook.URL,
		})
	}
}

// send posts the event with bounded retries.
func (c *Client) send(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := c.newRequest(j.hook, j.event.Event, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return lastErr
}

func (c *Client) newRequest(hook Hook, eventType EventType, payload []byte) (*http.Request, error) {
	// Deliberately not bound to c.ctx: queued events are still
	// delivered while Close drains the queue.
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mutgate-Webhook/1.0")
	req.Header.Set("X-Mutgate-Event", string(eventType))
	if hook.Secret != "" {
		req.Header.Set("X-Mutgate-Signature", sign(payload, hook.Secret))
	}
	return req, nil
}

// sign creates an HMAC-SHA256 signature for the payload.
func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook Hook, event EventType) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close drains the queue and stops the delivery worker.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}
