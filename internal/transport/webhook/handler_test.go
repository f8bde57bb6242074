package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamebridge/internal/category"
	"gamebridge/internal/registry"
	"gamebridge/internal/router"
	kit "gamebridge/internal/transport"
	logx "gamebridge/pkg/logx"
)

type lookup struct {
	dests []registry.Destination
	calls atomic.Int32
}

func (l *lookup) AllForCategory(category.Category) []registry.Destination {
	l.calls.Add(1)
	return l.dests
}

type gateway struct {
	mu   sync.Mutex
	sent map[registry.ChannelID]string
}

func (g *gateway) ResolveChannel(_ context.Context, id registry.ChannelID) (kit.Channel, error) {
	if id == 404 {
		return kit.Channel{}, errors.New("unknown channel")
	}
	return kit.Channel{ID: id, GuildID: 1, Text: true}, nil
}

func (g *gateway) Send(_ context.Context, id registry.ChannelID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent == nil {
		g.sent = map[registry.ChannelID]string{}
	}
	g.sent[id] = text
	return nil
}

func newTestHandler(t *testing.T, dests ...registry.Destination) (http.Handler, *lookup, *gateway) {
	t.Helper()
	l := &lookup{dests: dests}
	g := &gateway{}
	r := router.New(router.Config{SendTimeout: time.Second}, l, g, category.MustDefault())
	h := NewHandler(HandlerOptions{
		Router:        r,
		MaxBodyBytes:  256,
		ApplicationID: "123456",
		Log:           logx.Nop(),
	})
	return h, l, g
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNotifyDeliversDespitePartialFailure(t *testing.T) {
	h, _, g := newTestHandler(t,
		registry.Destination{GuildID: 1, ChannelID: 10},
		registry.Destination{GuildID: 1, ChannelID: 404},
	)
	rec := do(h, http.MethodPost, DefaultPath, `{"type":"joined","message":"bob joined"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, MsgSent, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Notification-Id"))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	require.Equal(t, map[registry.ChannelID]string{10: "bob joined"}, g.sent)
}

func TestNotifyWithNoDestinationsStillSucceeds(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := do(h, http.MethodPost, DefaultPath, `{"type":"nextupdate","message":"soon"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, MsgSent, rec.Body.String())
}

func TestNotifyRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"not json", `{"type":`, http.StatusBadRequest, MsgInvalidJSON},
		{"empty body", ``, http.StatusBadRequest, MsgInvalidJSON},
		{"trailing data", `{"type":"joined","message":"x"} {}`, http.StatusBadRequest, MsgInvalidJSON},
		{"missing type", `{"message":"x"}`, http.StatusBadRequest, "type and message are required"},
		{"missing message", `{"type":"joined"}`, http.StatusBadRequest, "type and message are required"},
		{"unknown type", `{"type":"weather","message":"x"}`, http.StatusBadRequest, "unknown type"},
		{"too large", `{"type":"joined","message":"` + strings.Repeat("x", 512) + `"}`, http.StatusRequestEntityTooLarge, MsgTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, l, g := newTestHandler(t, registry.Destination{GuildID: 1, ChannelID: 10})
			rec := do(h, http.MethodPost, DefaultPath, tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.want, rec.Body.String())
			require.Zero(t, l.calls.Load())
			require.Empty(t, g.sent)
		})
	}
}

func TestInvitePage(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := do(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "client_id=123456&amp;permissions=2048&amp;scope=bot%20applications.commands")
}

func TestInviteURL(t *testing.T) {
	require.Equal(t,
		"https://discord.com/oauth2/authorize?client_id=42&permissions=2048&scope=bot%20applications.commands",
		InviteURL("42"),
	)
}

func TestRoutingTable(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := do(h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, DefaultPath},
		{http.MethodPost, "/"},
		{http.MethodGet, "/nope"},
		{http.MethodPost, "/healthz"},
		{http.MethodPost, DefaultPath + "/extra"},
	} {
		rec := do(h, tc.method, tc.path, "")
		require.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestServerServesAndStops(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, h, logx.Nop())
	require.NoError(t, srv.Start(context.Background()))

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))

	_, err = http.Get("http://" + addr + "/healthz")
	require.Error(t, err)
}

func TestServerStartFailsOnBusyAddr(t *testing.T) {
	h, _, _ := newTestHandler(t)
	a := NewServer(Config{Addr: "127.0.0.1:0"}, h, logx.Nop())
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	b := NewServer(Config{Addr: a.Addr()}, h, logx.Nop())
	require.Error(t, b.Start(context.Background()))
}
