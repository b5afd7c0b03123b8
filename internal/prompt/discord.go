package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DiscordConfig configures the Discord prompt source.
type DiscordConfig struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// ChannelID restricts prompts to one text channel. Empty accepts every
	// channel the bot can read.
	ChannelID string

	// GoalPrefix marks messages that set the standing goal instead of
	// queueing a prompt. Default: "!goal".
	GoalPrefix string
}

// Discord feeds messages from a Discord text channel into a [Queue].
type Discord struct {
	cfg     DiscordConfig
	queue   *Queue
	session *discordgo.Session
}

// NewDiscord creates the source. The gateway connection is opened by
// [Discord.Run].
func NewDiscord(cfg DiscordConfig, q *Queue) (*Discord, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("prompt: discord: token is required")
	}
	if cfg.GoalPrefix == "" {
		cfg.GoalPrefix = "!goal"
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("prompt: discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	d := &Discord{cfg: cfg, queue: q, session: session}
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		d.handle(m.Message, selfID)
	})
	return d, nil
}

// Run opens the gateway connection and blocks until ctx is done.
func (d *Discord) Run(ctx context.Context) error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("prompt: discord: open session: %w", err)
	}
	slog.Info("prompt: discord source connected", "channel", d.cfg.ChannelID)

	<-ctx.Done()
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("prompt: discord: close session: %w", err)
	}
	return nil
}

// handle turns one message into a prompt or a goal change. Messages from
// bots, from the bot itself and from other channels are ignored.
func (d *Discord) handle(m *discordgo.Message, selfID string) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return
	}
	if d.cfg.ChannelID != "" && m.ChannelID != d.cfg.ChannelID {
		return
	}
	text := strings.TrimSpace(m.Content)

	if goal, ok := strings.CutPrefix(text, d.cfg.GoalPrefix); ok {
		d.queue.SetGoal(goal)
		slog.Info("prompt: goal set from discord", "author", m.Author.Username, "goal", d.queue.Goal())
		return
	}
	if d.queue.Push(Prompt{Text: text}) {
		slog.Debug("prompt: discord message queued", "author", m.Author.Username, "channel", m.ChannelID)
	}
}
