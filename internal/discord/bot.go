// Package discord runs the practice console as a Discord bot.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Executor runs one console line for a user.
type Executor interface {
	Exec(ctx context.Context, userID, line string) string
}

// Registry remembers which Discord account a practice user reads from.
type Registry interface {
	RegisterDiscordUser(ctx context.Context, userID, discordID string) error
}

type Bot struct {
	session *discordgo.Session
	console Executor
	users   Registry
	log     zerolog.Logger
}

func NewBot(token string, console Executor, users Registry, log zerolog.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	bot := &Bot{session: s, console: console, users: users, log: log}
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	log.Info().Str("bot", s.State.User.Username).Msg("Discord bot connected")
	return bot, nil
}

func (b *Bot) Close() {
	b.session.Close()
}

// SendDM delivers content to a Discord user, split to fit message limits.
func (b *Bot) SendDM(discordID, content string) error {
	ch, err := b.session.UserChannelCreate(discordID)
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	for _, chunk := range splitMessage(content, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(ch.ID, chunk); err != nil {
			return fmt.Errorf("sending DM: %w", err)
		}
	}
	return nil
}
