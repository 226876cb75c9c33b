package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendgridStub struct {
	mu       sync.Mutex
	requests map[string][]map[string]interface{}
	batches  int
}

func newSendgridStub(t *testing.T) (*sendgridStub, *httptest.Server) {
	stub := &sendgridStub{requests: make(map[string][]map[string]interface{})}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		payload := map[string]interface{}{}
		if len(body) > 0 {
			require.NoError(t, json.Unmarshal(body, &payload))
		}

		stub.mu.Lock()
		stub.requests[r.URL.Path] = append(stub.requests[r.URL.Path], payload)
		stub.mu.Unlock()

		switch r.URL.Path {
		case batchEndpoint:
			stub.mu.Lock()
			stub.batches++
			id := "batch-" + string(rune('0'+stub.batches))
			stub.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"batch_id":"` + id + `"}`))
		case sendEndpoint:
			w.Header().Set("X-Message-Id", "msg-1")
			w.WriteHeader(http.StatusAccepted)
		case scheduledEndpoint:
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func newTestDispatcher(host string) *SendGridDispatcher {
	return NewSendGridDispatcher(SendGridConfig{
		APIKey:    "key",
		Host:      host,
		FromName:  "ADG",
		FromEmail: "no-reply@example.com",
		Templates: map[string]string{TemplateWebinarCancellation: "d-cancel", TemplateWebinarStartingSoon: "d-soon"},
	}, nil)
}

func TestSendGridImmediateSend(t *testing.T) {
	stub, srv := newSendgridStub(t)
	d := newTestDispatcher(srv.URL)

	ids, err := d.Send(context.Background(), Message{
		Template:   TemplateWebinarCancellation,
		Recipients: []string{"a@example.com", "b@example.com", "a@example.com"},
		Data:       map[string]interface{}{"title": "Intro"},
	})
	require.NoError(t, err)
	assert.Equal(t, []MessageID{{Email: "a@example.com", ID: "msg-1"}, {Email: "b@example.com", ID: "msg-1"}}, ids)

	sent := stub.requests[sendEndpoint]
	require.Len(t, sent, 1)
	assert.Equal(t, "d-cancel", sent[0]["template_id"])
	personalizations := sent[0]["personalizations"].([]interface{})
	assert.Len(t, personalizations, 2)
	assert.Empty(t, stub.requests[batchEndpoint])
}

func TestSendGridScheduledSendUsesBatchPerRecipient(t *testing.T) {
	stub, srv := newSendgridStub(t)
	d := newTestDispatcher(srv.URL)
	at := time.Now().Add(48 * time.Hour)

	ids, err := d.Send(context.Background(), Message{
		Template:   TemplateWebinarStartingSoon,
		Recipients: []string{"a@example.com", "b@example.com"},
		SendAt:     &at,
	})
	require.NoError(t, err)
	assert.Equal(t, []MessageID{{Email: "a@example.com", ID: "batch-1"}, {Email: "b@example.com", ID: "batch-2"}}, ids)

	sent := stub.requests[sendEndpoint]
	require.Len(t, sent, 2)
	assert.Equal(t, "batch-1", sent[0]["batch_id"])
	assert.EqualValues(t, at.Unix(), sent[0]["send_at"])

	require.NoError(t, d.Cancel(context.Background(), []string{"batch-1", "", "batch-2"}))
	cancels := stub.requests[scheduledEndpoint]
	require.Len(t, cancels, 2)
	assert.Equal(t, map[string]interface{}{"batch_id": "batch-1", "status": "cancel"}, cancels[0])
}

func TestSendGridUnknownTemplate(t *testing.T) {
	d := newTestDispatcher("http://127.0.0.1:1")
	_, err := d.Send(context.Background(), Message{Template: "missing", Recipients: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "not configured")
}

func TestSendGridRejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL)
	_, err := d.Send(context.Background(), Message{Template: TemplateWebinarCancellation, Recipients: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "status 400")
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Unique([]string{"a", "", "b", "a"}))
}

func TestSendGridRejectsSendAtBeyondWindow(t *testing.T) {
	stub, srv := newSendgridStub(t)
	d := newTestDispatcher(srv.URL)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	at := now.Add(SendGridScheduleWindow + time.Minute)

	_, err := d.Send(context.Background(), Message{Template: TemplateWebinarStartingSoon, Recipients: []string{"a@example.com"}, SendAt: &at})
	assert.ErrorIs(t, err, ErrScheduleTooFar)
	assert.Empty(t, stub.requests[batchEndpoint])
	assert.Empty(t, stub.requests[sendEndpoint])
	assert.Equal(t, SendGridScheduleWindow, d.ScheduleWindow())
}

func TestSendGridHonoursCancelledContext(t *testing.T) {
	stub, srv := newSendgridStub(t)
	d := newTestDispatcher(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Send(ctx, Message{Template: TemplateWebinarCancellation, Recipients: []string{"a@example.com"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, stub.requests[sendEndpoint])
}
