package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/quicknotes/offline-hub/internal/cache"
	_ "github.com/quicknotes/offline-hub/internal/cache/fsstore"
	"github.com/quicknotes/offline-hub/internal/coordinator"
	"github.com/quicknotes/offline-hub/internal/lifecycle"
	"github.com/quicknotes/offline-hub/internal/server"
	"github.com/quicknotes/offline-hub/internal/worker"
)

type stubScript struct {
	version cache.VersionTag
}

func (s stubScript) Version() cache.VersionTag        { return s.version }
func (s stubScript) OnInstall(context.Context) error  { return nil }
func (s stubScript) OnActivate(context.Context) error { return nil }
func (s stubScript) OnFetch(context.Context, *worker.Request) (*worker.Result, error) {
	return nil, worker.ErrUnexpectedStatus
}

func (s stubScript) OnMessage(_ context.Context, scope worker.Scope, msg worker.Message) error {
	if msg.Type != worker.MessageSkipWaiting {
		return worker.ErrUnknownMessage
	}
	scope.SkipWaiting()
	return nil
}

func newDiagnosticsApp(t *testing.T, prompter *coordinator.PendingPrompter) (*fiber.App, *lifecycle.Registration, *server.Page) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := lifecycle.New(lifecycle.Options{Logger: logger})
	t.Cleanup(reg.Close)
	if _, err := reg.Update(context.Background(), stubScript{version: "v1"}); err != nil {
		t.Fatalf("install v1: %v", err)
	}
	page, err := server.NewPage(reg)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	app, err := server.NewApp(server.AppOptions{Logger: logger, Registration: reg, Page: page})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	RegisterWorkerRoutes(app, reg, page, "fs")
	RegisterUpdateRoutes(app, prompter)
	return app, reg, page
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	payload, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, payload
}

func TestWorkerDiagnostics(t *testing.T) {
	app, _, page := newDiagnosticsApp(t, nil)

	status, body := doRequest(t, app, http.MethodGet, "/-/worker", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", status, body)
	}
	var payload workerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if payload.Registration.Active == nil || payload.Registration.Active.Version != "v1" {
		t.Fatalf("expected active v1, got %+v", payload.Registration)
	}
	if payload.Controller == nil || payload.ClientID != page.ClientID() {
		t.Fatalf("expected controlled page, got %+v", payload)
	}
	found := false
	for _, driver := range payload.Drivers {
		if driver.Name == "fs" && driver.InUse {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fs driver in use, got %+v", payload.Drivers)
	}
}

func TestWorkerMessageSkipWaiting(t *testing.T) {
	app, reg, page := newDiagnosticsApp(t, nil)

	if status, _ := doRequest(t, app, http.MethodPost, "/-/worker/message", `{"type":"SKIP_WAITING"}`); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 without waiting worker, got %d", status)
	}

	next, err := reg.Update(context.Background(), stubScript{version: "v2"})
	if err != nil {
		t.Fatalf("install v2: %v", err)
	}
	if next.State() != lifecycle.StateInstalled {
		t.Fatalf("v2 should wait behind the controlled page, got %s", next.State())
	}

	if status, _ := doRequest(t, app, http.MethodPost, "/-/worker/message", `{"type":"PING"}`); status != fiber.StatusBadRequest {
		t.Fatalf("unknown message should be rejected, got %d", status)
	}
	if status, _ := doRequest(t, app, http.MethodPost, "/-/worker/message", `not json`); status != fiber.StatusBadRequest {
		t.Fatalf("invalid body should be rejected, got %d", status)
	}

	status, body := doRequest(t, app, http.MethodPost, "/-/worker/message", `{"type":"SKIP_WAITING"}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", status, body)
	}
	if reg.Active() != next || page.Controller() != next {
		t.Fatalf("SKIP_WAITING should hand control to v2")
	}
}

func TestUpdateRoutesDisabledWithoutPrompter(t *testing.T) {
	app, _, _ := newDiagnosticsApp(t, nil)
	if status, _ := doRequest(t, app, http.MethodGet, "/-/update", ""); status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestUpdateRoutesAnswerPendingNotice(t *testing.T) {
	prompter := coordinator.NewPendingPrompter()
	app, _, _ := newDiagnosticsApp(t, prompter)

	status, body := doRequest(t, app, http.MethodGet, "/-/update", "")
	if status != fiber.StatusOK || !strings.Contains(string(body), `"pending":false`) {
		t.Fatalf("expected no pending notice, got %d %s", status, body)
	}
	if status, _ := doRequest(t, app, http.MethodPost, "/-/update", `{"accept":true}`); status != fiber.StatusConflict {
		t.Fatalf("expected 409 without notice, got %d", status)
	}

	answer := make(chan bool, 1)
	go func() {
		accept, _ := prompter.Confirm(context.Background(), coordinator.Notice{Version: "v2", ActiveVersion: "v1"})
		answer <- accept
	}()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := prompter.Pending(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notice was never published")
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, body = doRequest(t, app, http.MethodGet, "/-/update", "")
	if !strings.Contains(string(body), `"version":"v2"`) {
		t.Fatalf("expected pending v2 notice, got %d %s", status, body)
	}
	if status, _ := doRequest(t, app, http.MethodPost, "/-/update", `{}`); status != fiber.StatusBadRequest {
		t.Fatalf("missing accept should be rejected, got %d", status)
	}
	if status, _ := doRequest(t, app, http.MethodPost, "/-/update", `{"accept":true}`); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	select {
	case accept := <-answer:
		if !accept {
			t.Fatalf("confirm should see acceptance")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("confirm was not answered")
	}
}
