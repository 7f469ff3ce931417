package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tasktrail/internal/config"
	"tasktrail/internal/db"
	"tasktrail/internal/domain"
	"tasktrail/internal/engine"
	"tasktrail/internal/migrate"
)

type delivery struct {
	Headers http.Header
	Body    []byte
}

type receiver struct {
	mu         sync.Mutex
	deliveries []delivery
	fail       bool
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		http.Error(w, "down", http.StatusBadGateway)
		return
	}
	r.deliveries = append(r.deliveries, delivery{Headers: req.Header.Clone(), Body: body})
	w.WriteHeader(http.StatusNoContent)
}

func (r *receiver) received() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.deliveries...)
}

func newWebhookEnv(t *testing.T) (engine.Engine, domain.Actor) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	u := domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleUser, PasswordHash: "x", CreatedAt: time.Now()}
	if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return e, domain.Actor{UserID: u.ID, Role: u.Role}
}

func TestWebhookDeliversSignedEntries(t *testing.T) {
	e, actor := newWebhookEnv(t)
	ctx := context.Background()
	task, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{Title: "before"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.ArchiveTask(ctx, actor, task.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	rcv := &receiver{}
	hook := httptest.NewServer(rcv)
	defer hook.Close()
	d := NewWebhookDispatcher(e.Repo, []config.WebhookConfig{{URL: hook.URL, Secret: "shh"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Entries written before the first poll are not replayed.
	d.DispatchAll(ctx)
	if got := rcv.received(); len(got) != 0 {
		t.Fatalf("expected no deliveries for old entries, got %d", len(got))
	}

	if _, err := e.RestoreTask(ctx, actor, task.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	d.DispatchAll(ctx)
	got := rcv.received()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].Headers.Get("X-Tasktrail-Change") != string(domain.ChangeRestored) {
		t.Fatalf("change header: %q", got[0].Headers.Get("X-Tasktrail-Change"))
	}
	if sig := got[0].Headers.Get("X-Tasktrail-Signature"); sig != Sign("shh", got[0].Body) {
		t.Fatalf("bad signature %q", sig)
	}
	var payload webhookEntry
	if err := json.Unmarshal(got[0].Body, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.TaskID != task.ID || payload.ModifiedBy != actor.UserID || len(payload.Updates) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	d.DispatchAll(ctx)
	if n := len(rcv.received()); n != 1 {
		t.Fatalf("entry delivered twice, total %d", n)
	}
}

func TestWebhookFilterAndRetry(t *testing.T) {
	e, actor := newWebhookEnv(t)
	ctx := context.Background()
	task, err := e.CreateTask(ctx, actor, engine.TaskCreateOptions{Title: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rcv := &receiver{fail: true}
	hook := httptest.NewServer(rcv)
	defer hook.Close()
	off := false
	d := NewWebhookDispatcher(e.Repo, []config.WebhookConfig{
		{URL: hook.URL, ChangeTypes: []string{string(domain.ChangeDeleted)}},
		{URL: hook.URL, Enabled: &off},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.DispatchAll(ctx)

	title := "y"
	if _, err := e.UpdateTask(ctx, actor, task.ID, domain.TaskPatch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.DeleteTask(ctx, actor, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	d.DispatchAll(ctx)
	if n := len(rcv.received()); n != 0 {
		t.Fatalf("failing receiver recorded %d deliveries", n)
	}

	rcv.mu.Lock()
	rcv.fail = false
	rcv.mu.Unlock()
	d.DispatchAll(ctx)
	got := rcv.received()
	if len(got) != 1 || got[0].Headers.Get("X-Tasktrail-Change") != string(domain.ChangeDeleted) {
		t.Fatalf("expected the delete entry once after recovery, got %+v", got)
	}
	if got[0].Headers.Get("X-Tasktrail-Signature") != "" {
		t.Fatalf("unsigned hook should not send a signature")
	}
}

func TestWebhookRunStopsOnCancel(t *testing.T) {
	e, _ := newWebhookEnv(t)
	d := NewWebhookDispatcher(e.Repo, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
