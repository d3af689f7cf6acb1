package services

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// FailureNotifier posts task failures to a Slack channel. Without a token or
// channel it only logs.
type FailureNotifier struct {
	client  *slack.Client
	channel string
}

func NewFailureNotifier(token, channel string, opts ...slack.Option) *FailureNotifier {
	n := &FailureNotifier{channel: channel}
	if token != "" && channel != "" {
		n.client = slack.New(token, opts...)
	}
	return n
}

func (n *FailureNotifier) Enabled() bool {
	return n.client != nil
}

func (n *FailureNotifier) Notify(ctx context.Context, f TaskFailure) error {
	if !n.Enabled() {
		log.Printf("task failure: task=%s name=%s error=%s", f.TaskID, f.Name, f.Error)
		return nil
	}
	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(failureText(f), false),
		slack.MsgOptionBlocks(failureBlocks(f)...),
	)
	if err != nil {
		return fmt.Errorf("posting failure to slack channel %s: %w", n.channel, err)
	}
	return nil
}

// Watch forwards failures until ctx is done or the channel closes.
func (n *FailureNotifier) Watch(ctx context.Context, failures <-chan TaskFailure) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-failures:
			if !ok {
				return
			}
			if err := n.Notify(ctx, f); err != nil {
				log.Printf("failed to send failure notification: task=%s error=%v", f.TaskID, err)
			}
		}
	}
}
