package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
)

type streamEvent struct {
	name string
	data string
}

type eventReader struct {
	t      *testing.T
	events chan streamEvent
}

func (ts *testServer) openStream(t *testing.T, token, channel string) (*http.Response, *eventReader) {
	t.Helper()
	url := ts.server.URL + "/stream?access_token=" + token
	if channel != "" {
		url += "&channel=" + channel
	}
	request, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	reader := &eventReader{t: t, events: make(chan streamEvent, 16)}
	if response.StatusCode == http.StatusOK {
		go reader.consume(bufio.NewReader(response.Body))
	}
	return response, reader
}

func (r *eventReader) consume(source *bufio.Reader) {
	defer close(r.events)
	current := streamEvent{}
	for {
		line, err := source.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			r.events <- current
			current = streamEvent{}
		}
	}
}

func (r *eventReader) next(name string) streamEvent {
	r.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			r.t.Fatalf("timed out waiting for %s", name)
		case event, ok := <-r.events:
			if !ok {
				r.t.Fatalf("stream closed while waiting for %s", name)
			}
			if event.name == name {
				return event
			}
		}
	}
}

func TestStreamDeliversUnreadCountUpdates(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice")
	bobby := ts.token(t, "bobby")
	ts.me(t, alice)
	bobbyUser := ts.me(t, bobby)

	response, events := ts.openStream(t, bobby, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status %d", response.StatusCode)
	}
	if contentType := response.Header.Get("Content-Type"); contentType != "text/event-stream" {
		t.Fatalf("unexpected content type %q", contentType)
	}

	var initial realtime.UnreadCountUpdated
	if err := json.Unmarshal([]byte(events.next(realtime.EventUnreadCountUpdated).data), &initial); err != nil {
		t.Fatalf("failed to decode initial counter: %v", err)
	}
	if initial.RecipientID != bobbyUser.ID || initial.UnreadCount != 0 {
		t.Fatalf("unexpected initial counter %+v", initial)
	}

	if status := ts.do(t, alice, http.MethodPost, "/posts", map[string]string{"body": "hey @bobby"}, nil); status != http.StatusCreated {
		t.Fatalf("unexpected create status %d", status)
	}

	var updated realtime.UnreadCountUpdated
	if err := json.Unmarshal([]byte(events.next(realtime.EventUnreadCountUpdated).data), &updated); err != nil {
		t.Fatalf("failed to decode counter: %v", err)
	}
	if updated.UnreadCount != 1 {
		t.Fatalf("expected unread count 1, got %+v", updated)
	}
}

func TestStreamReportsChannelRequiresModerator(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "alice")
	moderator := ts.token(t, "moderator1", "moderator")
	ts.me(t, alice)

	response, _ := ts.openStream(t, alice, realtime.ChannelReports)
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden stream, got %d", response.StatusCode)
	}

	response, events := ts.openStream(t, moderator, realtime.ChannelReports)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected moderator stream status %d", response.StatusCode)
	}
	// The initial counter is written after the subscription is registered.
	events.next(realtime.EventPendingReportsCountUpdated)

	aliceUser := ts.me(t, alice)
	bobby := ts.token(t, "bobby")
	ts.me(t, bobby)
	request := map[string]interface{}{"reportable_type": "user", "reportable_id": aliceUser.ID, "reason": "impersonation"}
	if status := ts.do(t, bobby, http.MethodPost, "/reports", request, nil); status != http.StatusCreated {
		t.Fatalf("unexpected report status %d", status)
	}

	var pending realtime.PendingReportsCountUpdated
	if err := json.Unmarshal([]byte(events.next(realtime.EventPendingReportsCountUpdated).data), &pending); err != nil {
		t.Fatalf("failed to decode pending counter: %v", err)
	}
	if pending.PendingCount != 1 {
		t.Fatalf("expected pending count 1, got %+v", pending)
	}
}

func TestAuthorizeChannel(t *testing.T) {
	member := users.User{ID: 7, Role: users.RoleUser}
	moderator := users.User{ID: 8, Role: users.RoleModerator}

	cases := []struct {
		user    users.User
		channel string
		allowed bool
	}{
		{member, realtime.NotificationsChannel(7), true},
		{member, realtime.NotificationsChannel(8), false},
		{member, realtime.ChannelReports, false},
		{moderator, realtime.ChannelReports, true},
		{moderator, realtime.NotificationsChannel(7), false},
		{member, "unknown", false},
	}
	for _, tc := range cases {
		if got := authorizeChannel(tc.user, tc.channel); got != tc.allowed {
			t.Fatalf("authorizeChannel(%d, %q) = %v, want %v", tc.user.ID, tc.channel, got, tc.allowed)
		}
	}
}
