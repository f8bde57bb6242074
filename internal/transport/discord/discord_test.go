package discord

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"gamebridge/internal/category"
	"gamebridge/internal/command"
	logx "gamebridge/pkg/logx"
)

func TestMenuAndApplicationCommands(t *testing.T) {
	menu := Menu(category.MustDefault())
	require.Len(t, menu, 3)
	require.Equal(t, "ping", menu[0].Name)
	require.Empty(t, menu[0].ChannelOption)
	require.Equal(t, "setjoinedchannel", menu[1].Name)
	require.Equal(t, "setnextupdatechannel", menu[2].Name)

	cmds := applicationCommands(menu)
	require.Empty(t, cmds[0].Options)
	opt := cmds[1].Options[0]
	require.Equal(t, discordgo.ApplicationCommandOptionChannel, opt.Type)
	require.Equal(t, channelOptionName, opt.Name)
	require.True(t, opt.Required)
	require.Equal(t, []discordgo.ChannelType{discordgo.ChannelTypeGuildText}, opt.ChannelTypes)
	for _, c := range cmds {
		require.LessOrEqual(t, utf8.RuneCountInString(c.Description), 100)
	}
}

func interaction(name string, guildID string, channelType discordgo.ChannelType) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: guildID,
		Member:  &discordgo.Member{User: &discordgo.User{ID: "7"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: name,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:  channelOptionName,
				Type:  discordgo.ApplicationCommandOptionChannel,
				Value: "99",
			}},
			Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
				Channels: map[string]*discordgo.Channel{"99": {ID: "99", Type: channelType}},
			},
		},
	}
}

func TestToRequest(t *testing.T) {
	req, ok := toRequest(interaction("setjoinedchannel", "1", discordgo.ChannelTypeGuildText), "7")
	require.True(t, ok)
	require.Equal(t, "setjoinedchannel", req.Command)
	require.EqualValues(t, 1, req.GuildID)
	require.EqualValues(t, 7, req.UserID)
	require.EqualValues(t, 7, req.OwnerID)
	require.Equal(t, &command.ChannelOption{ID: 99, Text: true}, req.Channel)

	voice, ok := toRequest(interaction("setjoinedchannel", "1", discordgo.ChannelTypeGuildVoice), "7")
	require.True(t, ok)
	require.False(t, voice.Channel.Text)

	dm := interaction("ping", "", discordgo.ChannelTypeDM)
	dm.Member = nil
	dm.User = &discordgo.User{ID: "8"}
	req, ok = toRequest(dm, "")
	require.True(t, ok)
	require.Zero(t, req.GuildID)
	require.EqualValues(t, 8, req.UserID)

	_, ok = toRequest(&discordgo.Interaction{Type: discordgo.InteractionPing}, "")
	require.False(t, ok)
}

func TestEphemeralResponse(t *testing.T) {
	resp := ephemeral(command.Reply{Content: "Pong!", Ephemeral: true})
	require.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	require.Equal(t, "Pong!", resp.Data.Content)
	require.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestSplitMessage(t *testing.T) {
	require.Equal(t, []string{"short"}, SplitMessage("short", 0))

	line := strings.Repeat("a", 900)
	text := line + "\n" + line + "\n" + line
	parts := SplitMessage(text, MessageLimit)
	require.Len(t, parts, 2)
	require.Equal(t, line+"\n"+line, parts[0])
	require.Equal(t, line, parts[1])

	long := strings.Repeat("é", 4500)
	parts = SplitMessage(long, MessageLimit)
	require.Len(t, parts, 3)
	for _, p := range parts {
		require.LessOrEqual(t, utf8.RuneCountInString(p), MessageLimit)
	}
	require.Equal(t, long, strings.Join(parts, ""))
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, nil, logx.Nop())
	require.Error(t, err)

	a, err := New(Config{Token: "abc"}, nil, logx.Nop())
	require.NoError(t, err)
	require.Equal(t, "Bot abc", a.sess.Token)
	require.Equal(t, discordgo.IntentsGuilds, a.sess.Identify.Intents)
}
