// Package slack posts alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/circleci/mongomonitor/config/secret"
	"github.com/circleci/mongomonitor/httpclient"
	"github.com/circleci/mongomonitor/o11y"
)

const (
	authorName = "MongoMonitor"
	authorLink = "https://github.com/eladnava/mongomonitor"
)

type Config struct {
	// ChannelURL is the webhook URL, it embeds the credential for the channel.
	ChannelURL secret.String
	// NotifyMembers are usernames mentioned on every message.
	NotifyMembers []string
	// Timeout bounds a single delivery including retries, defaults to 20s.
	Timeout time.Duration
}

type Client struct {
	notifyMembers []string
	http          *httpclient.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		notifyMembers: cfg.NotifyMembers,
		http: httpclient.New(httpclient.Config{
			Name:      "slack",
			BaseURL:   cfg.ChannelURL.Raw(),
			UserAgent: "mongomonitor",
			Timeout:   cfg.Timeout,
		}),
	}
}

type Payload struct {
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	Fallback   string `json:"fallback"`
	Pretext    string `json:"pretext,omitempty"`
	AuthorName string `json:"author_name"`
	AuthorLink string `json:"author_link"`
	Color      string `json:"color"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// Message builds the webhook payload for an alert.
func (c *Client) Message(subject string, err error) Payload {
	msg := err.Error()
	return Payload{
		Attachments: []Attachment{{
			Fallback:   msg,
			Pretext:    mentions(c.notifyMembers),
			AuthorName: authorName,
			AuthorLink: authorLink,
			Color:      "danger",
			Title:      subject,
			Text:       msg,
		}},
	}
}

// Send posts the alert to the channel.
func (c *Client) Send(ctx context.Context, subject string, alertErr error) (err error) {
	ctx, span := o11y.StartSpan(ctx, "slack: send")
	defer o11y.End(span, &err)
	span.AddField("subject", subject)
	span.AddField("mentions", len(c.notifyMembers))

	req := httpclient.NewRequest("POST", "", 5*time.Second)
	req.Body = c.Message(subject, alertErr)
	var reply string
	req.Decoder = httpclient.NewStringDecoder(&reply)

	err = c.http.Call(ctx, req)
	switch {
	case httpclient.IsNoContent(err):
		// some webhook proxies accept with an empty reply
		return nil
	case httpclient.IsRequestProblem(err):
		span.AddField("rejected", true)
		return fmt.Errorf("slack: channel rejected the alert, check channelUrl: %w", err)
	case err != nil:
		return err
	}
	span.AddField("reply", reply)
	return nil
}

func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func mentions(usernames []string) string {
	tags := make([]string, 0, len(usernames))
	for _, u := range usernames {
		if u == "" {
			continue
		}
		tags = append(tags, "<@"+u+">")
	}
	return strings.Join(tags, " ")
}
