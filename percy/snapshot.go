package percy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raysh454/percy-chromedp/logging"
)

// Options are forwarded to the agent with a snapshot, e.g. widths,
// minHeight or percyCSS. Nil is sent as an empty object.
type Options map[string]any

func (o Options) orEmpty() Options {
	if o == nil {
		return Options{}
	}
	return o
}

const serializeDOM = "(options) => PercyDOM.serialize(options)"

// Snapshot serializes page's DOM with the agent's dom.js and submits it as a
// web snapshot named name, returning the agent's data field.
//
// Calling it while the agent runs an automate build returns
// ErrInvalidSnapshotCall. When the agent is not running the call does nothing
// and returns nil. A dom.js download failure is returned as an error. Every
// other failure is logged and reported as a nil result.
func (c *Client) Snapshot(ctx context.Context, page Page, name string, opts Options) (json.RawMessage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if page == nil {
		return nil, ErrNilPage
	}

	switch c.Status(ctx) {
	case StatusWeb:
	case StatusAutomate:
		return nil, ErrInvalidSnapshotCall
	default:
		return nil, nil
	}

	domJS, err := c.FetchDOM(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.submitSnapshot(ctx, page, name, domJS, opts.orEmpty())
	if err != nil {
		c.logger.Error("Could not take DOM snapshot",
			logging.F("snapshot", name),
			logging.Err(err))
		return nil, nil
	}
	c.logger.Debug("snapshot taken", logging.F("snapshot", name))
	return data, nil
}

func (c *Client) submitSnapshot(ctx context.Context, page Page, name, domJS string, opts Options) (json.RawMessage, error) {
	if _, err := page.Evaluate(ctx, domJS); err != nil {
		return nil, fmt.Errorf("inject dom.js: %w", err)
	}
	dom, err := page.Evaluate(ctx, serializeDOM, opts)
	if err != nil {
		return nil, fmt.Errorf("serialize dom: %w", err)
	}
	dom = c.withCookies(ctx, page, dom)

	pageURL, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}

	clientInfo, envInfo := c.metadata()
	body := make(map[string]any, len(opts)+5)
	for k, v := range opts {
		body[k] = v
	}
	body["client_info"] = clientInfo
	body["environment_info"] = envInfo
	body["dom_snapshot"] = dom
	body["url"] = pageURL
	body["name"] = name

	return c.post(ctx, snapshotPath, body)
}

// withCookies adds the page's cookies to an object-shaped DOM payload.
// Payloads of any other shape, and cookie lookup failures, pass through.
func (c *Client) withCookies(ctx context.Context, page Page, dom json.RawMessage) json.RawMessage {
	src, ok := page.(CookieSource)
	if !ok {
		return dom
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(dom, &obj); err != nil || obj == nil {
		return dom
	}
	cookies, err := src.Cookies(ctx)
	if err != nil {
		c.logger.Debug("could not read page cookies", logging.Err(err))
		return dom
	}
	if cookies == nil {
		cookies = []Cookie{}
	}
	raw, err := json.Marshal(cookies)
	if err != nil {
		return dom
	}
	obj["cookies"] = raw
	out, err := json.Marshal(obj)
	if err != nil {
		return dom
	}
	return out
}
