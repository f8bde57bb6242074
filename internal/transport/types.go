package transport

import (
	"context"

	"gamebridge/internal/registry"
)

// Channel is a resolved chat channel.
type Channel struct {
	ID      registry.ChannelID
	GuildID registry.GuildID
	Name    string
	// Text is true for channels that accept plain messages.
	Text bool
}

// Gateway resolves and sends to chat channels. Implementations apply their
// own request timeouts; callers treat any error as a failed destination.
type Gateway interface {
	ResolveChannel(ctx context.Context, id registry.ChannelID) (Channel, error)
	Send(ctx context.Context, id registry.ChannelID, text string) error
}

// BotCommand is one entry of the slash command menu.
type BotCommand struct {
	Name        string
	Description string
	// ChannelOption names the required channel argument; empty for commands
	// without arguments.
	ChannelOption string
}
