// Package slack posts failure alerts to a Slack incoming webhook using
// Block Kit formatted messages.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Slack truncates section text around 3000 characters; leave headroom for the
// code fence markers.
const maxSnippetChars = 2900

// Notifier dispatches failure alerts to a Slack incoming webhook. An empty
// webhook URL disables dispatch.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier creates a webhook notifier. webhookURL may be empty, in which
// case Dispatch reports driven.ErrNoWebhook.
func NewNotifier(webhookURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// NewNotifierWithHTTPClient is intended for tests.
func NewNotifierWithHTTPClient(webhookURL string, httpClient *http.Client, logger *slog.Logger) *Notifier {
	return &Notifier{webhookURL: webhookURL, httpClient: httpClient, logger: logger}
}

// Dispatch renders the alert as a Block Kit message and posts it to the
// webhook.
func (n *Notifier) Dispatch(ctx context.Context, alert model.FailureAlert) error {
	if n.webhookURL == "" {
		return driven.ErrNoWebhook
	}

	msg := renderMessage(alert)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	n.logger.Debug("alert dispatched", "repo", alert.RepoFullName, "workflow", alert.WorkflowName)
	return nil
}

// renderMessage builds the Block Kit payload. The top-level text field carries
// a plain fallback for notification previews.
func renderMessage(alert model.FailureAlert) slackapi.WebhookMessage {
	title := fmt.Sprintf("*%s %s / %s: %s FAILED*",
		alert.Prefix, alert.RepoFullName, alert.Branch, alert.WorkflowName)
	if alert.Mention != "" {
		title = fmt.Sprintf("<!%s> %s", alert.Mention, title)
	}

	fields := []*slackapi.TextBlockObject{
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Conclusion:*\n%s", alert.Conclusion), false, false),
	}
	if alert.DurationText != "" {
		fields = append(fields, slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Duration:*\n%s", alert.DurationText), false, false))
	}
	if alert.RunURL != "" {
		fields = append(fields, slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Run:*\n<%s|view on GitHub>", alert.RunURL), false, false))
	}

	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType, title, false, false), nil, nil),
		slackapi.NewSectionBlock(nil, fields, nil),
	}

	if alert.LogSnippet != "" {
		snippet := alert.LogSnippet
		if len(snippet) > maxSnippetChars {
			snippet = snippet[len(snippet)-maxSnippetChars:]
		}
		blocks = append(blocks, slackapi.NewSectionBlock(
			slackapi.NewTextBlockObject(slackapi.MarkdownType,
				fmt.Sprintf("```%s```", snippet), false, false), nil, nil))
	}

	fallback := fmt.Sprintf("%s %s / %s: %s FAILED",
		alert.Prefix, alert.RepoFullName, alert.Branch, alert.WorkflowName)

	return slackapi.WebhookMessage{
		Text:   fallback,
		Blocks: &slackapi.Blocks{BlockSet: blocks},
	}
}
