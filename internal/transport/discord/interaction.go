package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"gamebridge/internal/command"
)

// toRequest converts a slash command interaction. ok is false for
// interactions that are not application commands. ownerID is resolved by
// the caller because it may need the state cache or a REST call.
func toRequest(i *discordgo.Interaction, ownerID string) (*command.Request, bool) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand {
		return nil, false
	}
	data := i.ApplicationCommandData()
	req := &command.Request{
		Command: data.Name,
		GuildID: parseID(i.GuildID),
		OwnerID: parseID(ownerID),
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		req.UserID = parseID(i.Member.User.ID)
	case i.User != nil:
		req.UserID = parseID(i.User.ID)
	}

	for _, opt := range data.Options {
		if opt == nil || opt.Name != channelOptionName || opt.Type != discordgo.ApplicationCommandOptionChannel {
			continue
		}
		raw, _ := opt.Value.(string)
		ch := &command.ChannelOption{ID: parseID(raw)}
		if data.Resolved != nil {
			if rc, ok := data.Resolved.Channels[raw]; ok && rc != nil {
				ch.Text = isText(rc.Type)
			}
		}
		req.Channel = ch
	}
	return req, true
}

func isText(t discordgo.ChannelType) bool {
	return t == discordgo.ChannelTypeGuildText
}

// parseID returns zero for empty or malformed IDs.
func parseID(s string) snowflake.ID {
	id, err := snowflake.Parse(s)
	if err != nil {
		return 0
	}
	return id
}

func ephemeral(rep command.Reply) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{
		Content:         rep.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if rep.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}
