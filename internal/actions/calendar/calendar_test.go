package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spokehub/internal/actions/google"
	"spokehub/internal/spoke"
)

type fakeCalendar struct {
	mu       sync.Mutex
	requests []string
	bodies   []map[string]any
	query    map[string]string
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		var body map[string]any
		_ = json.Unmarshal(b, &body)
		f.bodies = append(f.bodies, body)
	}
	f.query = map[string]string{}
	for k := range r.URL.Query() {
		f.query[k] = r.URL.Query().Get(k)
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/events/missing"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
		_, _ = io.WriteString(w, `{"items":[
			{"id":"e1","summary":"Standup","start":{"dateTime":"2024-01-02T09:00:00+09:00"},"end":{"dateTime":"2024-01-02T09:15:00+09:00"},"attendees":[{"email":"a@x.io"}]},
			{"id":"e2","summary":"Holiday","start":{"date":"2024-01-02"},"end":{"date":"2024-01-02"}}
		]}`)
	case r.Method == http.MethodPost:
		_, _ = io.WriteString(w, `{"id":"new1","htmlLink":"https://calendar/new1"}`)
	case r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"id":"e1","summary":"Old","description":"keep me","start":{"dateTime":"2024-01-02T09:00:00+09:00"},"end":{"dateTime":"2024-01-02T10:00:00+09:00"}}`)
	case r.Method == http.MethodPut:
		_, _ = io.WriteString(w, `{"id":"e1","htmlLink":"https://calendar/e1"}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusTeapot)
	}
}

func (f *fakeCalendar) snapshot() ([]string, []map[string]any, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...), append([]map[string]any(nil), f.bodies...), f.query
}

func newHandler(t *testing.T) (spoke.Handler, *fakeCalendar) {
	t.Helper()
	fake := &fakeCalendar{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokyo := time.FixedZone("Asia/Tokyo", 9*3600)
	f := NewFactory(google.StaticClient{HTTP: srv.Client()}, tokyo, srv.URL+"/")
	h, err := f.New(context.Background(), "7")
	require.NoError(t, err)
	return h, fake
}

func TestSupportedActions(t *testing.T) {
	h, _ := newHandler(t)
	assert.ElementsMatch(t, []string{
		"get_calendar_events", "create_calendar_event", "update_calendar_event", "delete_calendar_event",
	}, h.SupportedActions())
}

func TestGetEvents(t *testing.T) {
	h, fake := newHandler(t)

	res := h.Execute(context.Background(), "get_calendar_events", spoke.Params{
		"start_date": "2024-01-02T00:00:00",
		"end_date":   "2024-01-03T00:00:00",
	})
	require.True(t, res.Success, res.Error)

	events, ok := res.Data.([]Event)
	require.True(t, ok)
	require.Len(t, events, 2)
	assert.Equal(t, "Standup", events[0].Summary)
	assert.Equal(t, []string{"a@x.io"}, events[0].Attendees)
	assert.True(t, events[1].AllDay)
	assert.Equal(t, 2, res.Metadata["total_events"])
	assert.Equal(t, "2024-01-02 to 2024-01-03", res.Metadata["period"])

	requests, _, query := fake.snapshot()
	assert.Equal(t, "GET /calendars/primary/events", requests[0])
	assert.Equal(t, "2024-01-02T00:00:00+09:00", query["timeMin"])
	assert.Equal(t, "100", query["maxResults"])
	assert.Equal(t, "true", query["singleEvents"])
}

func TestCreateEvent(t *testing.T) {
	h, fake := newHandler(t)

	res := h.Execute(context.Background(), "create_calendar_event", spoke.Params{
		"summary":    "Dentist",
		"start_time": "2024-01-05T10:00:00",
		"end_time":   "2024-01-05T11:00:00",
		"attendees":  []any{"me@x.io"},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"event_id": "new1", "html_link": "https://calendar/new1"}, res.Data)
	assert.Equal(t, "primary", res.Metadata["calendar_id"])

	_, bodies, _ := fake.snapshot()
	require.Len(t, bodies, 1)
	start := bodies[0]["start"].(map[string]any)
	assert.Equal(t, "2024-01-05T10:00:00+09:00", start["dateTime"])
	assert.Equal(t, "Asia/Tokyo", start["timeZone"])
}

func TestUpdateEventKeepsUntouchedFields(t *testing.T) {
	h, fake := newHandler(t)

	res := h.Execute(context.Background(), "update_calendar_event", spoke.Params{
		"event_id":   "e1",
		"summary":    "New title",
		"start_time": "2024-01-02T10:00:00",
		"end_time":   "2024-01-02T11:00:00",
	})
	require.True(t, res.Success, res.Error)

	requests, bodies, _ := fake.snapshot()
	assert.Equal(t, []string{"GET /calendars/primary/events/e1", "PUT /calendars/primary/events/e1"}, requests)
	require.Len(t, bodies, 1)
	assert.Equal(t, "New title", bodies[0]["summary"])
	assert.Equal(t, "keep me", bodies[0]["description"])
}

func TestDeleteEvent(t *testing.T) {
	h, _ := newHandler(t)

	res := h.Execute(context.Background(), "delete_calendar_event", spoke.Params{"event_id": "e1"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"deleted_event_id": "e1"}, res.Data)

	res = h.Execute(context.Background(), "delete_calendar_event", spoke.Params{"event_id": "missing"})
	require.False(t, res.Success)
	assert.Equal(t, "Event not found", res.Error)
	assert.Equal(t, spoke.KindNotFound, res.Metadata["error_kind"])
	assert.Equal(t, 404, res.Metadata["status_code"])
}

func TestValidationFailsBeforeAnyCall(t *testing.T) {
	testCases := []struct {
		name    string
		action  string
		params  spoke.Params
		wantErr string
	}{
		{
			name:    "missing summary",
			action:  "create_calendar_event",
			params:  spoke.Params{"start_time": "2024-01-05T10:00:00", "end_time": "2024-01-05T11:00:00"},
			wantErr: "payload is missing required key: 'summary'",
		},
		{
			name:    "end before start",
			action:  "create_calendar_event",
			params:  spoke.Params{"summary": "x", "start_time": "2024-01-05T10:00:00", "end_time": "2024-01-05T09:00:00"},
			wantErr: "end_time must be after start_time",
		},
		{
			name:    "unparseable date",
			action:  "get_calendar_events",
			params:  spoke.Params{"start_date": "tomorrow", "end_date": "2024-01-05"},
			wantErr: "not a valid datetime",
		},
		{
			name:    "update without event id",
			action:  "update_calendar_event",
			params:  spoke.Params{"summary": "x", "start_time": "2024-01-05T10:00:00", "end_time": "2024-01-05T11:00:00"},
			wantErr: "payload is missing required key: 'event_id'",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, fake := newHandler(t)
			res := h.Execute(context.Background(), tc.action, tc.params)
			require.False(t, res.Success)
			assert.Contains(t, res.Error, tc.wantErr)
			assert.Equal(t, spoke.KindInvalidParameter, res.Metadata["error_kind"])
			requests, _, _ := fake.snapshot()
			assert.Empty(t, requests)
		})
	}
}

func TestUnsupportedAction(t *testing.T) {
	h, _ := newHandler(t)
	res := h.Execute(context.Background(), "share_calendar", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "unsupported action type: share_calendar", res.Error)
}

type failingClients struct{}

func (failingClients) Client(context.Context, string) (*http.Client, error) {
	return nil, spoke.WithKind(spoke.ErrAuthentication, "Authentication error: no token")
}

func TestFactoryAuthenticationFailure(t *testing.T) {
	_, err := NewFactory(failingClients{}, nil, "").New(context.Background(), "7")
	require.Error(t, err)
	assert.Equal(t, spoke.KindAuthentication, spoke.Kind(err))
}
