package discord

import (
	"github.com/bwmarrin/discordgo"

	"gamebridge/internal/category"
	kit "gamebridge/internal/transport"
)

const channelOptionName = "channel"

// Menu lists the slash commands for catalog: ping first, then one set
// command per category in declaration order.
func Menu(catalog *category.Catalog) []kit.BotCommand {
	specs := catalog.Specs()
	out := make([]kit.BotCommand, 0, len(specs)+1)
	out = append(out, kit.BotCommand{Name: category.PingCommand, Description: "Check that the bot is alive"})
	for _, s := range specs {
		out = append(out, kit.BotCommand{
			Name:          s.Command,
			Description:   truncate(s.Description, 100),
			ChannelOption: "Channel that receives " + s.Label + " messages",
		})
	}
	return out
}

// applicationCommands converts the menu into Discord's global command
// payload. Channel options only accept guild text channels.
func applicationCommands(menu []kit.BotCommand) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(menu))
	for _, c := range menu {
		cmd := &discordgo.ApplicationCommand{
			Name:        c.Name,
			Description: c.Description,
		}
		if c.ChannelOption != "" {
			cmd.Options = []*discordgo.ApplicationCommandOption{{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         channelOptionName,
				Description:  truncate(c.ChannelOption, 100),
				Required:     true,
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			}}
		}
		out = append(out, cmd)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
