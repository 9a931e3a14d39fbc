package percy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/percy-chromedp/logging"
)

const (
	noopFunction = "_ => {}"

	// BrowserStack intercepts this argument and answers with the session
	// details of the remote browser.
	sessionDetailsCommand = `browserstack_executor: {"action": "getSessionDetails"}`
)

// AutomateScreenshot asks an automate-mode agent to capture page itself,
// returning the agent's data field.
//
// Calling it while the agent runs a web build returns an error wrapping
// ErrInvalidFunctionCall. When the agent is not running the call returns
// nil. Other failures are logged and reported as a nil result.
func (c *Client) AutomateScreenshot(ctx context.Context, page AutomatePage, name string, opts Options) (json.RawMessage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if page == nil {
		return nil, ErrNilPage
	}

	switch c.Status(ctx) {
	case StatusAutomate:
	case StatusWeb:
		return nil, ErrInvalidFunctionCall
	default:
		return nil, nil
	}

	data, err := c.submitAutomate(ctx, page, name, opts.orEmpty())
	if err != nil {
		c.logger.Error("Could not take Percy Screenshot",
			logging.F("snapshot", name),
			logging.Err(err))
		return nil, nil
	}
	c.logger.Debug("automate screenshot taken", logging.F("snapshot", name))
	return data, nil
}

type sessionDetails struct {
	HashedID string `json:"hashed_id"`
}

func (c *Client) submitAutomate(ctx context.Context, page AutomatePage, name string, opts Options) (json.RawMessage, error) {
	raw, err := page.Evaluate(ctx, noopFunction, sessionDetailsCommand)
	if err != nil {
		return nil, fmt.Errorf("session details: %w", err)
	}
	sessionID, err := parseSessionID(raw)
	if err != nil {
		return nil, err
	}

	guids, err := page.GUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("page guids: %w", err)
	}

	clientInfo, envInfo := c.metadata()
	body := map[string]any{
		"client_info":      clientInfo,
		"environment_info": envInfo,
		"sessionId":        sessionID,
		"pageGuid":         guids.Page,
		"frameGuid":        guids.Frame,
		"framework":        c.driver.Framework,
		"snapshotName":     name,
		"options":          opts,
	}
	return c.post(ctx, automatePath, body)
}

// parseSessionID accepts the session details either as a JSON-encoded string
// or as an object.
func parseSessionID(raw json.RawMessage) (string, error) {
	payload := []byte(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		payload = []byte(s)
	}
	var details sessionDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		return "", fmt.Errorf("decode session details: %w", err)
	}
	if details.HashedID == "" {
		return "", errors.New("session details carry no hashed_id")
	}
	return details.HashedID, nil
}
