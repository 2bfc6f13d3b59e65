package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/deskclaw/pkg/wire"
)

// ListConversations fetches the bridge's current conversation list
// (no message bodies). Used by the refresh poll.
func (c *Client) ListConversations(ctx context.Context) ([]wire.ConversationSummary, error) {
	var out []wire.ConversationSummary
	err := c.getJSON(ctx, "/conversations", nil, &out)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// ListMessages fetches up to limit recent messages for one conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]wire.MessageEvent, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []wire.MessageEvent
	err := c.getJSON(ctx, "/conversations/"+url.PathEscape(conversationID)+"/messages", q, &out)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", conversationID, err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	u := strings.TrimSuffix(c.cfg.URL, "/") + "/instances/" + url.PathEscape(c.cfg.InstanceID) + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
