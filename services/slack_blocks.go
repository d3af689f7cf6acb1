package services

import (
	"fmt"

	"github.com/slack-go/slack"
)

const failureTimeLayout = "2006-01-02 15:04:05 MST"

// failureText is the notification fallback shown in previews and by clients
// without Block Kit.
func failureText(f TaskFailure) string {
	return fmt.Sprintf("tracker sync task failed: %s (%s): %s", f.TaskID, f.Name, f.Error)
}

// failureBlocks renders a task failure as a header, a field section and the
// error in a code block.
func failureBlocks(f TaskFailure) []slack.Block {
	name := f.Name
	if name == "" {
		name = "task"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, ":warning: *tracker sync task failed*", false, false),
			[]*slack.TextBlockObject{
				slack.NewTextBlockObject(slack.MarkdownType, "*task:*\n"+name, false, false),
				slack.NewTextBlockObject(slack.MarkdownType, "*id:*\n`"+f.TaskID+"`", false, false),
			},
			nil,
		),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "```"+f.Error+"```", false, false),
			nil, nil,
		),
	}
	if !f.FailedAt.IsZero() {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "failed at "+f.FailedAt.Format(failureTimeLayout), false, false),
		))
	}
	return blocks
}
