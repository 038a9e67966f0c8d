// Package discord delivers rendered messages through the Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/rankbot/pkg/notify"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
	"github.com/sw33tLie/rankbot/pkg/whttp"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://discord.com/api/v10"

	// CodeCannotMessageUser is returned when the user blocked the bot, left every
	// shared server or disabled direct messages.
	CodeCannotMessageUser = 50007
)

// DeliveryError is a rejected Discord API call.
type DeliveryError struct {
	Recipient  string
	StatusCode int
	Code       int // Discord JSON error code, 0 if absent
	Message    string
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("discord: delivery to %s failed with status %d", e.Recipient, e.StatusCode)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d: %s)", e.Code, e.Message)
	}
	return msg
}

// Revoked reports whether the recipient can no longer be messaged.
func (e *DeliveryError) Revoked() bool {
	return e.Code == CodeCannotMessageUser
}

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	Proxy   string
}

// Client implements notify.Deliverer.
type Client struct {
	token   string
	baseURL string
	http    *retryablehttp.Client // idempotent calls
	post    *retryablehttp.Client // message posts, see messageRetryPolicy

	mu        sync.Mutex
	dmChannel map[string]string // user id -> DM channel id
}

func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: no bot token configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	opts := whttp.ClientOptions{Timeout: cfg.Timeout, RetryMax: 3, Proxy: cfg.Proxy}
	client, err := whttp.NewClient(opts)
	if err != nil {
		return nil, err
	}
	post, err := whttp.NewClient(opts)
	if err != nil {
		return nil, err
	}
	post.CheckRetry = messageRetryPolicy
	return &Client{
		token:     cfg.Token,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      client,
		post:      post,
		dmChannel: make(map[string]string),
	}, nil
}

// messageRetryPolicy retries a message post only when Discord cannot have
// created the message: a rate-limited request, or a connection that was never
// established. A 5xx or a timeout may follow a message that was already posted.
func messageRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial", nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

type embedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

func toEmbed(m render.Message) embed {
	e := embed{Title: m.Title, Description: m.Description, Color: m.Color}
	for _, f := range m.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: f.Value})
	}
	if m.Footer != "" {
		e.Footer = &embedFooter{Text: m.Footer}
	}
	return e
}

// Deliver posts msg as an embed. Direct recipients are user ids and get a DM
// channel opened first; group recipients are channel ids.
func (c *Client) Deliver(ctx context.Context, to notify.Recipient, msg render.Message) error {
	channelID := to.ID
	if to.Kind != storage.ChannelGroup {
		id, err := c.openDM(ctx, to.ID)
		if err != nil {
			return err
		}
		channelID = id
	}

	body, err := json.Marshal(map[string]interface{}{"embeds": []embed{toEmbed(msg)}})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, c.post, to.ID, "/channels/"+channelID+"/messages", body)
	return err
}

func (c *Client) openDM(ctx context.Context, userID string) (string, error) {
	c.mu.Lock()
	id, ok := c.dmChannel[userID]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	body, err := json.Marshal(map[string]string{"recipient_id": userID})
	if err != nil {
		return "", err
	}
	res, err := c.call(ctx, c.http, userID, "/users/@me/channels", body)
	if err != nil {
		return "", err
	}
	id = gjson.Get(res, "id").Str
	if id == "" {
		return "", &DeliveryError{Recipient: userID, StatusCode: http.StatusOK, Message: "no channel id in response"}
	}

	c.mu.Lock()
	c.dmChannel[userID] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) call(ctx context.Context, client *retryablehttp.Client, recipient, path string, body []byte) (string, error) {
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		URL:    c.baseURL + path,
		Method: http.MethodPost,
		Headers: []whttp.WHTTPHeader{
			{Name: "Authorization", Value: "Bot " + c.token},
			{Name: "Content-Type", Value: "application/json"},
		},
		Body: bytes.NewReader(body),
	}, client)
	if err != nil {
		return "", fmt.Errorf("discord: delivery to %s: %w", recipient, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", &DeliveryError{
			Recipient:  recipient,
			StatusCode: res.StatusCode,
			Code:       int(gjson.Get(res.BodyString, "code").Int()),
			Message:    gjson.Get(res.BodyString, "message").Str,
		}
	}
	return res.BodyString, nil
}
