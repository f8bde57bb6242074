// Package command authorizes and applies the administrative slash commands
// that bind a guild's text channel to a notification category.
package command

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"

	"gamebridge/internal/category"
	"gamebridge/internal/errs"
	"gamebridge/internal/registry"
	logx "gamebridge/pkg/logx"
)

// User-visible replies.
const (
	MsgGuildOnly    = "This command can only be used inside a server."
	MsgOwnerOnly    = "Only the owner of this server can use this command."
	MsgTextChannel  = "Please choose a text channel."
	MsgPong         = "Pong!"
	MsgUnknown      = "Unknown command."
	MsgFailed       = "Something went wrong."
	MsgPersistAfter = "Warning: this setting could not be saved and will be lost when the bot restarts. Run the command again later."
)

// ChannelOption is the destination argument of a set command.
type ChannelOption struct {
	ID   registry.ChannelID
	Text bool
}

// Request is one slash command invocation.
type Request struct {
	ID      string
	Command string

	// GuildID is zero for invocations outside a guild (direct messages).
	GuildID registry.GuildID
	UserID  snowflake.ID
	OwnerID snowflake.ID

	Channel *ChannelOption
}

// Reply is sent back to the invoking user.
type Reply struct {
	Content   string
	Ephemeral bool
}

// Registrar is the registry write the handler needs.
type Registrar interface {
	Set(ctx context.Context, guild registry.GuildID, cat category.Category, channel registry.ChannelID) error
}

type Handler struct {
	reg     Registrar
	catalog *category.Catalog
	log     logx.Logger
	h       HandlerFunc
}

// Options tune the handler. Zero values use defaults.
type Options struct {
	Timeout time.Duration
}

func New(reg Registrar, catalog *category.Catalog, log logx.Logger, opt Options) *Handler {
	if catalog == nil {
		catalog = category.MustDefault()
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	h := &Handler{reg: reg, catalog: catalog, log: log}
	h.h = Chain(h.dispatch,
		MWRequestLog(log),
		MWPanicRecover(log),
		MWTimeout(opt.Timeout),
	)
	return h
}

// Handle runs req and always produces a reply. Failures are mapped to the
// user-facing message of their kind.
func (h *Handler) Handle(ctx context.Context, req *Request) Reply {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	rep, err := h.h(ctx, req)
	switch {
	case err == nil:
	case errs.Is(err, errs.CodePersist):
		// rep already carries the success text plus the warning
	case isUserError(err):
		rep = Reply{Content: errs.Message(err)}
	default:
		rep = Reply{Content: MsgFailed}
	}
	rep.Ephemeral = true
	return rep
}

// Run is Handle without the error mapping.
func (h *Handler) Run(ctx context.Context, req *Request) (Reply, error) {
	return h.h(ctx, req)
}

func (h *Handler) dispatch(ctx context.Context, req *Request) (Reply, error) {
	if req.Command == category.PingCommand {
		return Reply{Content: MsgPong}, nil
	}
	spec, ok := h.catalog.ByCommand(req.Command)
	if !ok {
		return Reply{}, errs.Validation(MsgUnknown, map[string]any{"command": req.Command})
	}

	if req.GuildID == 0 {
		return Reply{}, errs.Authorization(MsgGuildOnly)
	}
	if req.UserID == 0 || req.UserID != req.OwnerID {
		return Reply{}, errs.Authorization(MsgOwnerOnly)
	}
	if req.Channel == nil || req.Channel.ID == 0 || !req.Channel.Text {
		return Reply{}, errs.Validation(MsgTextChannel, nil)
	}

	text := spec.Label + " messages will now be sent to <#" + req.Channel.ID.String() + ">."
	if err := h.reg.Set(ctx, req.GuildID, spec.Name, req.Channel.ID); err != nil {
		if errs.Is(err, errs.CodePersist) {
			return Reply{Content: text + "\n" + MsgPersistAfter}, err
		}
		return Reply{}, err
	}
	return Reply{Content: text}, nil
}

func isUserError(err error) bool {
	return errs.Is(err, errs.CodeAuthorization) || errs.Is(err, errs.CodeValidation)
}
