package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mantaqc_backend/internal/reports"
	"mantaqc_backend/platform/events"
	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

type testWebhookConfig struct {
	endpoints []string
}

func (c *testWebhookConfig) GetWebhookEndpoints() []string    { return c.endpoints }
func (c *testWebhookConfig) GetWebhookTimeout() time.Duration { return 2 * time.Second }

func TestForwardPostsToAllEndpoints(t *testing.T) {
	var mu sync.Mutex
	received := map[string][]byte{}

	newServer := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			received[name] = body
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
	}
	srv1 := newServer("first")
	defer srv1.Close()
	srv2 := newServer("second")
	defer srv2.Close()

	n := New(&testWebhookConfig{endpoints: []string{srv1.URL, srv2.URL}}, logger.New("development"))

	event := reports.ReportReadyEvent{
		BaseEvent: events.NewBaseEvent(),
		ReportID:  uuid.New(),
		CheckID:   uuid.New(),
		FileKey:   "reports/x/x.xlsx",
	}
	if err := n.forward(context.Background(), event); err != nil {
		t.Fatalf("forward: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("endpoints hit = %d, want 2", len(received))
	}
	for name, body := range received {
		var env struct {
			Event string `json:"event"`
			Data  struct {
				ReportID uuid.UUID `json:"report_id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			t.Fatalf("decode %s body: %v", name, err)
		}
		if env.Event != reports.EventReportReady {
			t.Fatalf("%s event = %s, want %s", name, env.Event, reports.EventReportReady)
		}
		if env.Data.ReportID != event.ReportID {
			t.Fatalf("%s report id mismatch", name)
		}
	}
}

func TestForwardSwallowsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(&testWebhookConfig{endpoints: []string{srv.URL}}, logger.New("development"))
	event := reports.ReportReadyEvent{BaseEvent: events.NewBaseEvent(), ReportID: uuid.New()}
	if err := n.forward(context.Background(), event); err != nil {
		t.Fatalf("forward should swallow delivery errors, got %v", err)
	}
}
