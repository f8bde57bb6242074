package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebridge/internal/category"
	"gamebridge/internal/errs"
	"gamebridge/internal/registry"
	"gamebridge/internal/storage"
	logx "gamebridge/pkg/logx"
)

type fakeStore struct{ fail error }

func (f *fakeStore) Load(context.Context) (storage.Document, error) { return storage.Document{}, nil }
func (f *fakeStore) Save(context.Context, storage.Document) error  { return f.fail }
func (f *fakeStore) Close() error                                   { return nil }

type panicRegistrar struct{}

func (panicRegistrar) Set(context.Context, registry.GuildID, category.Category, registry.ChannelID) error {
	panic("registry exploded")
}

func newHandler(t *testing.T, store storage.Store) (*Handler, *registry.Service) {
	t.Helper()
	reg := registry.New(store, nil)
	return New(reg, nil, logx.Nop(), Options{}), reg
}

func setRequest() *Request {
	return &Request{
		Command: "setjoinedchannel",
		GuildID: 1,
		UserID:  7,
		OwnerID: 7,
		Channel: &ChannelOption{ID: 99, Text: true},
	}
}

func TestOwnerSetsChannel(t *testing.T) {
	h, reg := newHandler(t, &fakeStore{})
	rep := h.Handle(context.Background(), setRequest())
	require.True(t, rep.Ephemeral)
	require.Equal(t, "Joined messages will now be sent to <#99>.", rep.Content)

	ch, ok := reg.Get(1, "joined")
	require.True(t, ok)
	require.Equal(t, registry.ChannelID(99), ch)
}

func TestRejectionsLeaveRegistryUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request)
		code   string
		reply  string
	}{
		{"outside guild", func(r *Request) { r.GuildID = 0 }, errs.CodeAuthorization, MsgGuildOnly},
		{"not owner", func(r *Request) { r.UserID = 8 }, errs.CodeAuthorization, MsgOwnerOnly},
		{"owner unknown", func(r *Request) { r.OwnerID = 0 }, errs.CodeAuthorization, MsgOwnerOnly},
		{"voice channel", func(r *Request) { r.Channel.Text = false }, errs.CodeValidation, MsgTextChannel},
		{"no channel", func(r *Request) { r.Channel = nil }, errs.CodeValidation, MsgTextChannel},
		{"unknown command", func(r *Request) { r.Command = "setweatherchannel" }, errs.CodeValidation, MsgUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, reg := newHandler(t, &fakeStore{})
			req := setRequest()
			tt.mutate(req)

			_, err := h.Run(context.Background(), req)
			require.True(t, errs.Is(err, tt.code), "got %v", err)

			rep := h.Handle(context.Background(), req)
			require.Equal(t, tt.reply, rep.Content)
			require.True(t, rep.Ephemeral)
			require.Zero(t, reg.Len())
		})
	}
}

func TestPersistFailureWarnsButApplies(t *testing.T) {
	h, reg := newHandler(t, &fakeStore{fail: errors.New("read-only filesystem")})
	req := setRequest()
	req.Command = "setnextupdatechannel"

	_, err := h.Run(context.Background(), req)
	require.True(t, errs.Is(err, errs.CodePersist))

	rep := h.Handle(context.Background(), req)
	require.Contains(t, rep.Content, "Next update messages will now be sent to <#99>.")
	require.Contains(t, rep.Content, MsgPersistAfter)

	_, ok := reg.Get(1, "nextupdate")
	require.True(t, ok)
}

func TestPingNeedsNoAuthorization(t *testing.T) {
	h, _ := newHandler(t, &fakeStore{})
	rep := h.Handle(context.Background(), &Request{Command: "ping"})
	require.Equal(t, MsgPong, rep.Content)
	require.True(t, rep.Ephemeral)
}

func TestPanicBecomesGenericReply(t *testing.T) {
	h := New(panicRegistrar{}, nil, logx.Nop(), Options{})
	rep := h.Handle(context.Background(), setRequest())
	require.Equal(t, MsgFailed, rep.Content)
}

func TestHandleAssignsRequestID(t *testing.T) {
	h, _ := newHandler(t, &fakeStore{})
	req := &Request{Command: "ping"}
	h.Handle(context.Background(), req)
	require.NotEmpty(t, req.ID)
}
