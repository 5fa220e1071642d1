package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/identity"
	"github.com/flowlabs/flowd/internal/store/storetest"
)

func dialFocusChannel(t *testing.T, server *httptest.Server, cookie *http.Cookie, sessionID string) *websocket.Conn {
	t.Helper()

	url := "ws" + server.URL[len("http"):] + "/ws/focus?session_id=" + sessionID
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		t.Fatalf("dial focus channel: %v", err)
	}
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return frame
}

// identityCookie performs one HTTP request through the identity middleware to
// obtain an anon cookie and its user id.
func identityCookie(t *testing.T, repo *storetest.Repo) (*http.Cookie, string) {
	t.Helper()

	var userID string
	handler := identity.Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = identity.UserIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.AnonCookieName {
			return c, userID
		}
	}
	t.Fatal("no identity cookie issued")
	return nil, ""
}

func newFocusServer(t *testing.T, repo *storetest.Repo, registry *Registry) *httptest.Server {
	t.Helper()

	cfg := Config{TickInterval: 10 * time.Millisecond, IdleTimeout: time.Minute, DepthPerTick: 0.5}
	wsHandler := NewWebSocketHandler(repo, registry, clock.System{}, cfg, "", true)

	mux := http.NewServeMux()
	mux.Handle("/ws/focus", identity.Middleware(repo, true)(wsHandler))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFocusChannelStreamsDepthFrames(t *testing.T) {
	repo := storetest.New()
	registry := NewRegistry()
	server := newFocusServer(t, repo, registry)

	cookie, userID := identityCookie(t, repo)
	repo.SeedSession(domain.NewFlowSession("s1", userID, "", time.Now()))

	ws := dialFocusChannel(t, server, cookie, "s1")
	defer ws.Close(websocket.StatusNormalClosure, "test done")

	frame := readFrame(t, ws)
	if frame["type"] != "depth" {
		t.Fatalf("frame type = %v: %v", frame["type"], frame)
	}
	if frame["in_session"] != true {
		t.Errorf("in_session = %v", frame["in_session"])
	}

	// Activity pings are accepted while frames keep flowing.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"activity"}`)); err != nil {
		t.Fatalf("write activity: %v", err)
	}
	next := readFrame(t, ws)
	if next["type"] != "depth" {
		t.Errorf("frame type = %v", next["type"])
	}
}

func TestFocusChannelRejectsUnknownSession(t *testing.T) {
	repo := storetest.New()
	server := newFocusServer(t, repo, NewRegistry())

	cookie, _ := identityCookie(t, repo)
	ws := dialFocusChannel(t, server, cookie, "no-such-session")
	defer ws.Close(websocket.StatusNormalClosure, "test done")

	frame := readFrame(t, ws)
	if frame["type"] != "error" || frame["error"] != "session_not_found" {
		t.Errorf("frame = %v, want session_not_found error", frame)
	}
}

func TestFocusChannelRejectsEndedSession(t *testing.T) {
	repo := storetest.New()
	server := newFocusServer(t, repo, NewRegistry())

	cookie, userID := identityCookie(t, repo)
	session := domain.NewFlowSession("done", userID, "", time.Now().Add(-time.Hour))
	if err := session.Finalize(time.Now(), 50, nil, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	repo.SeedSession(session)

	ws := dialFocusChannel(t, server, cookie, "done")
	defer ws.Close(websocket.StatusNormalClosure, "test done")

	frame := readFrame(t, ws)
	if frame["type"] != "error" || frame["error"] != "session_not_active" {
		t.Errorf("frame = %v, want session_not_active error", frame)
	}
}

func TestFocusChannelRejectsForeignSession(t *testing.T) {
	repo := storetest.New()
	server := newFocusServer(t, repo, NewRegistry())

	cookie, _ := identityCookie(t, repo)
	repo.SeedSession(domain.NewFlowSession("theirs", "someone_else", "", time.Now()))

	ws := dialFocusChannel(t, server, cookie, "theirs")
	defer ws.Close(websocket.StatusNormalClosure, "test done")

	frame := readFrame(t, ws)
	if frame["type"] != "error" || frame["error"] != "session_not_found" {
		t.Errorf("frame = %v, want session_not_found error", frame)
	}
}
