package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts lifecycle events to a Slack channel via a bot token.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier builds a SlackNotifier posting to channel using token.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token), channel: channel}
}

func (s *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	text := fmt.Sprintf("[%s] %s %s: %s", ev.Name, ev.TaskID, ev.RunID, ev.Message)
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	return err
}
