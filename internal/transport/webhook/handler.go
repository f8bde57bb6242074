package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"gamebridge/internal/errs"
	"gamebridge/internal/router"
	logx "gamebridge/pkg/logx"
)

// Response bodies.
const (
	MsgSent        = "Message sent"
	MsgInvalidJSON = "invalid JSON body"
	MsgTooLarge    = "request body too large"
	MsgInternal    = "internal error"
)

// Router is the fan-out the webhook feeds.
type Router interface {
	Route(ctx context.Context, category, payload string) (router.Report, error)
}

type HandlerOptions struct {
	Router        Router
	Path          string
	MaxBodyBytes  int64
	ApplicationID string
	Log           logx.Logger
}

type notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type handler struct {
	opt       HandlerOptions
	inviteURL string
}

// NewHandler serves the notification endpoint, the invite page and
// /healthz. Every other request is a 404.
func NewHandler(opt HandlerOptions) http.Handler {
	if opt.Path == "" {
		opt.Path = DefaultPath
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &handler{opt: opt, inviteURL: InviteURL(opt.ApplicationID)}
	mux := http.NewServeMux()
	mux.HandleFunc(opt.Path, only(http.MethodPost, h.notify))
	mux.HandleFunc("/{$}", only(http.MethodGet, h.invite))
	mux.HandleFunc("/healthz", only(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		text(w, http.StatusOK, "ok")
	}))
	mux.HandleFunc("/", http.NotFound)
	return withRequestLog(opt.Log, mux)
}

const (
	DefaultPath         = "/roblox-message"
	DefaultMaxBodyBytes = 64 << 10
)

// only answers 404 for other methods so unmatched routes look alike.
func only(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}

// InviteURL is the OAuth2 link that adds the bot with Send Messages
// permission and slash commands.
func InviteURL(applicationID string) string {
	q := url.Values{}
	q.Set("client_id", applicationID)
	q.Set("permissions", "2048")
	return "https://discord.com/oauth2/authorize?" + q.Encode() + "&scope=bot%20applications.commands"
}

func (h *handler) notify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opt.MaxBodyBytes)
	var n notification
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&n); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			text(w, http.StatusRequestEntityTooLarge, MsgTooLarge)
			return
		}
		text(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}
	if _, err := dec.Token(); err != io.EOF {
		text(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}

	rep, err := h.opt.Router.Route(r.Context(), n.Type, n.Message)
	if err != nil {
		if errs.Is(err, errs.CodeValidation) {
			text(w, http.StatusBadRequest, errs.Message(err))
			return
		}
		h.opt.Log.Error("notification routing failed", logx.String("type", n.Type), logx.Err(err))
		text(w, errs.Status(err), MsgInternal)
		return
	}
	w.Header().Set("X-Notification-Id", rep.ID)
	text(w, http.StatusOK, MsgSent)
}

var invitePage = template.Must(template.New("invite").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Invite the bot</title>
    <style>
      body { font-family: Arial, sans-serif; background: #2c2f33; color: white; display: flex;
             justify-content: center; align-items: center; height: 100vh; margin: 0; flex-direction: column; }
      a.button { background-color: #7289da; color: white; padding: 15px 30px; border-radius: 8px;
                 text-decoration: none; font-size: 20px; font-weight: bold; transition: background-color 0.3s ease; }
      a.button:hover { background-color: #5b6eae; }
    </style>
  </head>
  <body>
    <h1>Welcome to the game bridge bot</h1>
    <p>Click the button below to add the bot to your server:</p>
    <a class="button" href="{{.}}" target="_blank" rel="noopener noreferrer">Invite the bot</a>
  </body>
</html>
`))

func (h *handler) invite(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := invitePage.Execute(w, template.URL(h.inviteURL)); err != nil {
		h.opt.Log.Warn("invite page render failed", logx.Err(err))
	}
}

func text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestLog(log logx.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		rec.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(rec, r)

		fields := []logx.Field{
			logx.String("req_id", reqID),
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", rec.status),
			logx.Duration("dur", time.Since(start)),
		}
		if rec.status >= 500 {
			log.Warn("http request failed", fields...)
		} else {
			log.Debug("http request", fields...)
		}
	})
}
