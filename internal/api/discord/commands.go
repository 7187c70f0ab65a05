package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-tracker/internal/commands"
)

var minLimit = 0.0

// ApplicationCommands returns the slash commands the bot registers.
func ApplicationCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: string(commands.Claim), Description: "Claim this ticket"},
		{Name: string(commands.ThreadClaim), Description: "Claim this ticket if you are under the claim limit"},
		{Name: string(commands.Unclaim), Description: "Release this ticket"},
		{Name: string(commands.Close), Description: "Mark this ticket as closed"},
		{Name: string(commands.MyClaims), Description: "Show how many tickets you hold"},
		{
			Name:        string(commands.SetClaimLimit),
			Description: "Set how many tickets an agent may hold at once",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "limit",
				Description: "Maximum active claims per agent",
				Required:    true,
				MinValue:    &minLimit,
			}},
		},
		{
			Name:        string(commands.ClaimEnforcement),
			Description: "Choose whether /claim checks the claim limit",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "enabled",
				Description: "Enforce the claim limit on /claim",
				Required:    true,
			}},
		},
	}
}
