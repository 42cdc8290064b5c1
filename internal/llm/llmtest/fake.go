// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/resume-optimizer/internal/llm"
)

// Call records one request made to a Client.
type Call struct {
	Prompt string
	Tier   llm.ModelTier
	JSON   bool
}

// Responder produces the reply for a prompt.
type Responder func(prompt string) (string, error)

// Client answers prompts by matching registered substrings, in registration
// order. Unmatched prompts fail.
type Client struct {
	mu     sync.Mutex
	rules  []rule
	calls  []Call
	closed bool
}

type rule struct {
	match   string
	respond Responder
}

// New returns an empty fake client.
func New() *Client {
	return &Client{}
}

// On registers a fixed reply for prompts containing match.
func (c *Client) On(match, reply string) *Client {
	return c.OnFunc(match, func(string) (string, error) { return reply, nil })
}

// Fail registers an error for prompts containing match.
func (c *Client) Fail(match string, err error) *Client {
	return c.OnFunc(match, func(string) (string, error) { return "", err })
}

// OnFunc registers a responder for prompts containing match.
func (c *Client) OnFunc(match string, fn Responder) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{match: match, respond: fn})
	return c
}

// Calls returns the requests made so far.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) reply(ctx context.Context, prompt string, tier llm.ModelTier, json bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.calls = append(c.calls, Call{Prompt: prompt, Tier: tier, JSON: json})
	rules := c.rules
	c.mu.Unlock()

	for _, r := range rules {
		if strings.Contains(prompt, r.match) {
			return r.respond(prompt)
		}
	}
	return "", fmt.Errorf("llmtest: no reply registered for prompt %.80q", prompt)
}

// GenerateContent implements llm.Client.
func (c *Client) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.reply(ctx, prompt, tier, false)
}

// GenerateJSON implements llm.Client.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.reply(ctx, prompt, tier, true)
}

// GetModel implements llm.Client.
func (c *Client) GetModel(tier llm.ModelTier) string {
	return "fake-" + string(tier)
}

// Close implements llm.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

var _ llm.Client = (*Client)(nil)
