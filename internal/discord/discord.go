package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"locatorbot/internal/llm"
)

const replyTimeout = 60 * time.Second

// Session wraps a discordgo session for a single guild. It implements the
// announce.Chat interface and wires inbound messages to the LLM responder.
type Session struct {
	session *discordgo.Session
	guildID string
	logger  *zap.Logger
}

func New(token, guildID string, logger *zap.Logger) (*Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &Session{
		session: s,
		guildID: guildID,
		logger:  logger,
	}, nil
}

// Open connects the gateway. Handlers must be registered before calling it.
func (c *Session) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("error opening Discord gateway: %w", err)
	}
	return nil
}

func (c *Session) Close() error {
	return c.session.Close()
}

// ChannelIDByName resolves a text channel name within the configured guild.
// Called once per channel at startup so a misconfigured channel name fails
// fast instead of surfacing mid-cycle.
func (c *Session) ChannelIDByName(name string) (string, error) {
	channels, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return "", fmt.Errorf("error listing guild channels: %w", err)
	}

	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("channel %q not found in guild %s", name, c.guildID)
}

// ThreadNames lists the names of the channel's live threads. The result is
// read fresh every cycle; it is the sole source of dedupe truth.
func (c *Session) ThreadNames(channelID string) ([]string, error) {
	list, err := c.session.GuildThreadsActive(c.guildID)
	if err != nil {
		return nil, fmt.Errorf("error listing active threads: %w", err)
	}

	var names []string
	for _, thread := range list.Threads {
		if thread.ParentID == channelID {
			names = append(names, thread.Name)
		}
	}
	return names, nil
}

// SendMessage posts a message and returns its ID so a thread can be rooted
// at it.
func (c *Session) SendMessage(channelID, content string) (string, error) {
	msg, err := c.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("error sending message to channel %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// StartThread opens a named discussion thread rooted at a message.
func (c *Session) StartThread(channelID, messageID, name string, autoArchiveMinutes int) (string, error) {
	thread, err := c.session.MessageThreadStart(channelID, messageID, name, autoArchiveMinutes)
	if err != nil {
		return "", fmt.Errorf("error creating thread %q: %w", name, err)
	}
	return thread.ID, nil
}

// HandleMessages registers the inbound message handler: every non-bot
// message is recorded into the channel history, !hello gets a greeting, and
// mentions of the bot are relayed to the responder.
func (c *Session) HandleMessages(responder *llm.Responder) {
	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
			return
		}

		responder.Record(m.ChannelID, m.Content)

		if m.Content == "!hello" {
			if _, err := s.ChannelMessageSend(m.ChannelID, "Hello!"); err != nil {
				c.logger.Warn("Failed to send greeting", zap.Error(err))
			}
			return
		}

		if s.State.User == nil || !mentionsUser(m, s.State.User.ID) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()

		reply := responder.Reply(ctx, m.ChannelID)
		if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
			c.logger.Error("Failed to send reply",
				zap.String("channel_id", m.ChannelID),
				zap.Error(err))
		}
	})
}

func mentionsUser(m *discordgo.MessageCreate, userID string) bool {
	for _, user := range m.Mentions {
		if user.ID == userID {
			return true
		}
	}
	return false
}
