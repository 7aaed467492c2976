package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"syncline/internal/config"
	"syncline/internal/domain"
	"syncline/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the audit log and delivers matching entries to
// configured endpoints. Each hook keeps its own cursor; delivery failure
// stops that hook's cursor so the entry is retried next tick.
type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]auditCursor
}

type auditCursor struct {
	createdAt string
	id        string
}

func startWebhookDispatcher(r repo.Repo, cfg *config.Config) {
	if cfg == nil || len(cfg.Webhooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		repo:     r,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		cursors:  make(map[int]auditCursor),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *webhookDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	entries, err := d.repo.AuditEntriesAfter(ctx, defaultWebhookBatch, cursor.createdAt, cursor.id)
	if err != nil {
		log.Printf("webhook: fetch audit entries failed: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	filter := newActionFilter(hook.Actions)
	for _, e := range entries {
		if !filter.match(e.Action) {
			d.setCursor(idx, auditCursor{createdAt: e.CreatedAt, id: e.ID})
			continue
		}
		if err := d.postEntry(ctx, hook, e); err != nil {
			log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, auditCursor{createdAt: e.CreatedAt, id: e.ID})
	}
}

func (d *webhookDispatcher) cursorFor(idx int) auditCursor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	// New hooks start at the log tail so a restart does not replay history.
	createdAt, id, err := d.repo.LatestAuditCursor(context.Background())
	if err != nil {
		log.Printf("webhook: init cursor failed: %v", err)
	}
	cur := auditCursor{createdAt: createdAt, id: id}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, cur auditCursor) {
	d.mu.Lock()
	d.cursors[idx] = cur
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Category   string          `json:"action_category"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	CreatedAt  string          `json:"created_at"`
	Details    json.RawMessage `json:"details"`
	DetailsRaw string          `json:"details_raw,omitempty"`
}

func (d *webhookDispatcher) postEntry(ctx context.Context, hook config.WebhookConfig, e domain.AuditLogEntry) error {
	details := json.RawMessage([]byte("{}"))
	var raw string
	if e.Details != "" {
		if json.Valid([]byte(e.Details)) {
			details = json.RawMessage([]byte(e.Details))
		} else {
			raw = e.Details
		}
	}
	body := webhookEvent{
		ID:         e.ID,
		Action:     e.Action,
		Category:   e.ActionCategory,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		CreatedAt:  e.CreatedAt,
		Details:    details,
		DetailsRaw: raw,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Syncline-Action", e.Action)
	req.Header.Set("X-Syncline-Delivery", e.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Syncline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

func newActionFilter(actions []string) actionFilter {
	if len(actions) == 0 {
		return actionFilter{all: true}
	}
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		key := strings.TrimSpace(a)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[action]
	return ok
}
