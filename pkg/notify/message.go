package notify

import (
	"fmt"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

var statusEmoji = map[string]string{
	"completed": ":white_check_mark:",
	"failed":    ":x:",
	"timed_out": ":hourglass:",
	"cancelled": ":no_entry_sign:",
	"escalated": ":rotating_light:",
}

var statusLabel = map[string]string{
	"completed": "Workflow Complete",
	"failed":    "Workflow Failed",
	"timed_out": "Workflow Timed Out",
	"cancelled": "Workflow Cancelled",
	"escalated": "Workflow Escalated",
}

func workflowURL(workflowID, dashboardURL string) string {
	return fmt.Sprintf("%s/workflows/%s", dashboardURL, workflowID)
}

// BuildStartedMessage creates Block Kit blocks for a workflow start notification.
func BuildStartedMessage(workflowID, dashboardURL string) []goslack.Block {
	url := workflowURL(workflowID, dashboardURL)
	text := fmt.Sprintf(":arrows_counterclockwise: *Workflow started*. Agents are on it.\n<%s|View in Dashboard>", url)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildApprovalMessage creates Block Kit blocks for an approval request.
// Options, when present, are listed so the reviewer sees the candidates
// before opening the dashboard.
func BuildApprovalMessage(input ApprovalRequestedInput, dashboardURL string) []goslack.Block {
	headerText := fmt.Sprintf(":raised_hand: *Approval needed: %s*", input.Title)
	if input.Description != "" {
		headerText += "\n" + truncateForSlack(input.Description)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	if len(input.Options) > 0 {
		optionsText := "*Options:*"
		for _, opt := range input.Options {
			optionsText += "\n• " + opt
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(optionsText), false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review & Respond", false, false))
	btn.URL = workflowURL(input.WorkflowID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildTerminalMessage creates Block Kit blocks for a terminal workflow notification.
func BuildTerminalMessage(input WorkflowCompletedInput, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[input.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[input.Status]
	if label == "" {
		label = "Workflow " + input.Status
	}

	var blocks []goslack.Block

	headerText := fmt.Sprintf("%s *%s*", emoji, label)
	if input.Status == "completed" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		))
		if input.Reason != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.Reason), false, false),
				nil, nil,
			))
		}
	} else {
		if input.Reason != "" {
			headerText += "\n" + truncateForSlack(input.Reason)
		}
		if input.ErrorMessage != "" {
			headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(input.ErrorMessage))
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		))
	}

	url := workflowURL(input.WorkflowID, dashboardURL)
	buttonText := "View Results"
	if input.Status != "completed" {
		buttonText = "View Details"
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// truncateForSlack caps text at maxBlockTextLength runes. Slack counts
// characters, not bytes, and rejects blocks over 3000.
func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated, view details in dashboard)_"
}
