package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// SendText delivers a plain text message to a contact address.
// Returns whether the bridge confirmed delivery to the provider.
func (c *Client) SendText(ctx context.Context, contact, content string) (bool, error) {
	return c.postSend(ctx, contact, content)
}

// SendSelectionPrompt sends the department-choice prompt: the header
// followed by a numbered department list.
func (c *Client) SendSelectionPrompt(ctx context.Context, contact, header string, departments []model.Department) (bool, error) {
	if len(departments) == 0 {
		return false, fmt.Errorf("send selection prompt: no departments")
	}
	var b strings.Builder
	b.WriteString(header)
	for i, d := range departments {
		fmt.Fprintf(&b, "\n*%d* - %s", i+1, d.Name)
		if d.Description != "" {
			fmt.Fprintf(&b, " (%s)", d.Description)
		}
	}
	return c.postSend(ctx, contact, b.String())
}

// SendConfirmation sends the routing confirmation, expanding
// {department} in the template.
func (c *Client) SendConfirmation(ctx context.Context, contact, departmentName, template string) (bool, error) {
	content := strings.ReplaceAll(template, "{department}", departmentName)
	return c.postSend(ctx, contact, content)
}

func (c *Client) postSend(ctx context.Context, contact, content string) (bool, error) {
	// Sends share one limiter: the provider throttles aggressively and
	// a burst of routing prompts must not trip it.
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	body, err := json.Marshal(map[string]string{
		"to":      contact,
		"content": content,
	})
	if err != nil {
		return false, fmt.Errorf("encode send: %w", err)
	}

	u := strings.TrimSuffix(c.cfg.URL, "/") + "/instances/" + url.PathEscape(c.cfg.InstanceID) + "/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("send to %s: %w", contact, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("send to %s: bridge returned %s", contact, resp.Status)
	}

	var ack struct {
		Sent bool `json:"sent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// Older bridges reply with an empty 200.
		return true, nil
	}
	return ack.Sent, nil
}
