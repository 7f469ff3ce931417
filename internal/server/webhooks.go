package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"tasktrail/internal/config"
	"tasktrail/internal/domain"
	"tasktrail/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher posts committed audit entries to the configured endpoints.
// Each endpoint keeps its own cursor and starts from the entries written after
// its first poll.
type WebhookDispatcher struct {
	Repo     repo.Repo
	Hooks    []config.WebhookConfig
	Logger   *slog.Logger
	Interval time.Duration

	client  *http.Client
	mu      sync.Mutex
	cursors map[int]int64
}

func NewWebhookDispatcher(r repo.Repo, hooks []config.WebhookConfig, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		Repo:     r,
		Hooks:    hooks,
		Logger:   logger,
		Interval: defaultWebhookInterval,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[int]int64),
	}
}

// Run polls until ctx is done.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	if len(d.Hooks) == 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.Hooks {
		if !hook.IsEnabled() || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor, ok := d.cursorFor(ctx, idx)
	if !ok {
		return
	}
	entries, err := d.Repo.AuditAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.Logger.Error("webhook: fetch audit entries failed", slog.String("error", err.Error()))
		return
	}
	filter := newChangeFilter(hook.ChangeTypes)
	for _, entry := range entries {
		if !filter.match(string(entry.ChangeType)) {
			d.setCursor(idx, entry.Seq)
			continue
		}
		if err := d.post(ctx, hook, entry); err != nil {
			d.Logger.Warn("webhook: delivery failed", slog.String("url", hook.URL), slog.Int64("seq", entry.Seq), slog.String("error", err.Error()))
			return
		}
		d.setCursor(idx, entry.Seq)
	}
}

func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, true
	}
	cur, err := d.Repo.LatestAuditSeq(ctx)
	if err != nil {
		d.Logger.Error("webhook: init cursor failed", slog.String("error", err.Error()))
		return 0, false
	}
	d.cursors[idx] = cur
	return cur, true
}

func (d *WebhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEntry struct {
	ID         string                `json:"id"`
	Seq        int64                 `json:"seq"`
	TaskID     string                `json:"task_id"`
	ModifiedBy string                `json:"modified_by"`
	ChangeType string                `json:"change_type"`
	Updates    []FieldChangeResponse `json:"updates"`
	Timestamp  time.Time             `json:"timestamp"`
}

// Sign returns the hex HMAC-SHA256 of body sent in X-Tasktrail-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *WebhookDispatcher) post(ctx context.Context, hook config.WebhookConfig, e domain.AuditEntry) error {
	updates := make([]FieldChangeResponse, 0, len(e.Updates))
	for _, u := range e.Updates {
		updates = append(updates, FieldChangeResponse{Field: u.Field, OldValue: u.OldValue.Any(), NewValue: u.NewValue.Any()})
	}
	data, err := json.Marshal(webhookEntry{
		ID:         e.ID,
		Seq:        e.Seq,
		TaskID:     e.TaskID,
		ModifiedBy: e.ModifiedBy,
		ChangeType: string(e.ChangeType),
		Updates:    updates,
		Timestamp:  e.Timestamp,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tasktrail-Change", string(e.ChangeType))
	req.Header.Set("X-Tasktrail-Delivery", e.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Tasktrail-Signature", Sign(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type changeFilter struct {
	all bool
	set map[string]struct{}
}

func newChangeFilter(types []string) changeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return changeFilter{all: true}
	}
	return changeFilter{set: set}
}

func (f changeFilter) match(changeType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[changeType]
	return ok
}
