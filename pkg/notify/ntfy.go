package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// AlertType represents different types of alerts
type AlertType string

const (
	AlertTypeWriteFailure AlertType = "write_failure"
	AlertTypeRejected     AlertType = "rejected_input"
	AlertTypeTargetLost   AlertType = "target_lost"
	AlertTypeInfo         AlertType = "info"
)

// Priority levels for NTFY
type Priority int

const (
	PriorityMin     Priority = 1
	PriorityLow     Priority = 2
	PriorityDefault Priority = 3
	PriorityHigh    Priority = 4
	PriorityUrgent  Priority = 5
)

// NTFYConfig holds configuration for NTFY notifications
type NTFYConfig struct {
	ServerURL string
	Topic     string
	Username  string // Optional basic auth
	Password  string // Optional basic auth
	Enabled   bool
	MinGap    time.Duration // minimum time between two alerts of one type
}

// NTFYClient sends operator alerts to an ntfy topic.
type NTFYClient struct {
	config     NTFYConfig
	httpClient *retryablehttp.Client
	mu         sync.Mutex
	lastAlerts map[AlertType]time.Time
	now        func() time.Time
}

// NTFYMessage represents a message to send
type NTFYMessage struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// NewNTFYClient creates a new NTFY client
func NewNTFYClient(config NTFYConfig) *NTFYClient {
	if config.ServerURL == "" {
		config.ServerURL = "https://ntfy.sh"
	}
	if config.MinGap == 0 {
		config.MinGap = 5 * time.Minute
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.Logger = nil
	hc.HTTPClient.Timeout = 10 * time.Second

	return &NTFYClient{
		config:     config,
		httpClient: hc,
		lastAlerts: make(map[AlertType]time.Time),
		now:        time.Now,
	}
}

// IsEnabled returns whether notifications are enabled
func (c *NTFYClient) IsEnabled() bool {
	return c != nil && c.config.Enabled && c.config.Topic != ""
}

// SendAlert sends a notification unless one of the same type went out less
// than MinGap ago.
func (c *NTFYClient) SendAlert(ctx context.Context, alertType AlertType, title, message string, priority Priority) error {
	if !c.IsEnabled() {
		return nil
	}

	c.mu.Lock()
	if last, ok := c.lastAlerts[alertType]; ok && c.now().Sub(last) < c.config.MinGap {
		c.mu.Unlock()
		return nil
	}
	c.lastAlerts[alertType] = c.now()
	c.mu.Unlock()

	return c.send(ctx, title, message, priority, tagsFor(alertType))
}

func (c *NTFYClient) send(ctx context.Context, title, message string, priority Priority, tags []string) error {
	jsonData, err := json.Marshal(NTFYMessage{
		Topic:    c.config.Topic,
		Title:    title,
		Message:  message,
		Priority: int(priority),
		Tags:     tags,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal NTFY message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.config.ServerURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create NTFY request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Username != "" && c.config.Password != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send NTFY notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("NTFY returned error status: %d", resp.StatusCode)
	}
	return nil
}

func tagsFor(alertType AlertType) []string {
	switch alertType {
	case AlertTypeWriteFailure:
		return []string{"rotating_light", "floppy_disk"}
	case AlertTypeRejected:
		return []string{"warning", "page_facing_up"}
	case AlertTypeTargetLost:
		return []string{"stop_sign", "lock"}
	default:
		return []string{"information_source"}
	}
}

// AlertWriteFailure reports batches that could not be persisted.
func (c *NTFYClient) AlertWriteFailure(ctx context.Context, source string, failed int) error {
	title := "Harvester write failure"
	message := fmt.Sprintf("%d batch(es) from %s could not be written and will be retried", failed, source)
	return c.SendAlert(ctx, AlertTypeWriteFailure, title, message, PriorityHigh)
}

// AlertRejected reports inputs that were dropped as malformed.
func (c *NTFYClient) AlertRejected(ctx context.Context, source string, rejected int) error {
	title := "Harvester rejected input"
	message := fmt.Sprintf("%d envelope(s) in %s were malformed and skipped", rejected, source)
	return c.SendAlert(ctx, AlertTypeRejected, title, message, PriorityDefault)
}

// AlertTargetLost reports that another process took over an output target.
func (c *NTFYClient) AlertTargetLost(ctx context.Context, target string) error {
	title := "Harvester lost its output target"
	message := fmt.Sprintf("Writer lock on %s was lost; the process is stopping", target)
	return c.SendAlert(ctx, AlertTypeTargetLost, title, message, PriorityUrgent)
}
