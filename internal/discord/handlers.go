package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Discord rejects messages longer than this.
const maxMessageLen = 2000

// UserID is the practice user a Discord account reads as.
func UserID(discordID string) string { return "discord-" + discordID }

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	s.ChannelTyping(m.ChannelID)

	for _, chunk := range b.reply(context.Background(), m.Author.ID, isDM, content) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.log.Warn().Err(err).Str("channel", m.ChannelID).Msg("send failed")
			return
		}
	}
}

// reply runs content through the console. DMs also register the channel for
// dawn notices.
func (b *Bot) reply(ctx context.Context, authorID string, isDM bool, content string) []string {
	user := UserID(authorID)
	if isDM && b.users != nil {
		if err := b.users.RegisterDiscordUser(ctx, user, authorID); err != nil {
			b.log.Warn().Err(err).Str("user", user).Msg("warning: could not record DM user")
		}
	}
	out := b.console.Exec(ctx, user, content)
	if out == "" {
		return nil
	}
	return splitMessage(out, maxMessageLen)
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := min(maxLen, len(s))
		// Prefer the last newline inside the window
		if end < len(s) {
			if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
				end = idx + 1
			}
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
