package notifier

import (
	"context"

	"github.com/slack-go/slack"

	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
)

// SlackNotifier posts operator alerts to a channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

func NewSlackNotifier(token, channel string, options ...slack.Option) *SlackNotifier {
	return &SlackNotifier{api: slack.New(token, options...), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while posting to Slack.")
	}
	return err
}

// Nop drops notifications; it is used when Slack is not configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

var (
	_ repository.INotifier = (*SlackNotifier)(nil)
	_ repository.INotifier = Nop{}
)
