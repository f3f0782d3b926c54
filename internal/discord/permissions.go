package discord

import (
	"github.com/bwmarrin/discordgo"
)

// isAdministrator reports whether a member has administrator privileges in
// the guild, owns it, or is the configured developer.
func (b *Bot) isAdministrator(s *discordgo.Session, guildID, userID string, member *discordgo.Member) bool {
	if isDeveloper(b.cfg.DeveloperID, userID) {
		return true
	}
	if member == nil {
		return false
	}

	guild, err := s.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, err = s.Guild(guildID)
		if err != nil || guild == nil {
			return false
		}
	}
	return hasAdministrator(guild, userID, member.Roles)
}

func hasAdministrator(guild *discordgo.Guild, userID string, memberRoles []string) bool {
	if userID == guild.OwnerID {
		return true
	}
	for _, id := range memberRoles {
		for _, role := range guild.Roles {
			if role.ID == id && role.Permissions&discordgo.PermissionAdministrator != 0 {
				return true
			}
		}
	}
	return false
}

func isDeveloper(developerID, userID string) bool {
	return developerID != "" && userID == developerID
}
