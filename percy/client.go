// Package percy sends visual snapshots from a browser tab to a locally
// running Percy agent.
//
// A Client first probes the agent's healthcheck to learn whether snapshots
// are enabled and in which mode. Web builds receive a serialized DOM produced
// in the page by the agent's dom.js; automate builds receive the session and
// page identifiers so the agent can capture the screenshot itself. Agent
// outages never fail the caller: they are logged and reported as a nil result.
package percy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/raysh454/percy-chromedp/internal/webclient"
	"github.com/raysh454/percy-chromedp/logging"
)

const (
	healthcheckPath = "/percy/healthcheck"
	domScriptPath   = "/percy/dom.js"
	snapshotPath    = "/percy/snapshot"
	automatePath    = "/percy/automateScreenshot"

	coreVersionHeader = "x-percy-core-version"
)

// Client talks to one Percy agent.
type Client struct {
	cfg        Config
	wc         webclient.WebClient
	logger     logging.Logger
	driver     Driver
	clientInfo string

	mu           sync.Mutex
	status       Status
	statusCached bool
	domScript    string
	domCached    bool
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger. The client logs under component=percy.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWebClient replaces the HTTP transport.
func WithWebClient(wc webclient.WebClient) Option {
	return func(c *Client) {
		if wc != nil {
			c.wc = wc
		}
	}
}

// WithDriver sets the driver identity sent in environment_info.
func WithDriver(d Driver) Option {
	return func(c *Client) {
		c.driver = d
	}
}

// WithClientInfo overrides the client_info string.
func WithClientInfo(info string) Option {
	return func(c *Client) {
		if info != "" {
			c.clientInfo = info
		}
	}
}

// New creates a Client. Zero fields in cfg take DefaultConfig values.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg.withDefaults(),
		logger:     defaultLogger(cfg.Debug),
		driver:     DefaultDriver(),
		clientInfo: ClientName + "/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.F("component", "percy"))

	if c.wc == nil {
		// Never errors; deadlines come from the per-call contexts.
		wc, _ := webclient.NewNetHTTPClient(webclient.Config{UserAgent: c.clientInfo}, c.logger, nil)
		c.wc = wc
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.wc.Close()
}

// Status probes the agent healthcheck once and memoizes the answer until
// ResetCache. Concurrent callers share a single probe. Any failure yields
// StatusDisabled.
func (c *Client) Status(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.statusCached {
		return c.status
	}

	status, err := c.probe(ctx)
	if err != nil {
		c.logger.Info("Percy is not running, disabling snapshots")
		c.logger.Debug("healthcheck failed", logging.Err(err))
		// A caller giving up is not an agent state worth remembering.
		if ctx.Err() != nil {
			return StatusDisabled
		}
	}
	c.status = status
	c.statusCached = true
	return status
}

// ResetCache forgets the probed status and the cached DOM script.
func (c *Client) ResetCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusDisabled
	c.statusCached = false
	c.domScript = ""
	c.domCached = false
}

type healthcheckReply struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Error   string `json:"error"`
}

func (c *Client) probe(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthcheckTimeout)
	defer cancel()

	resp, err := c.wc.Get(ctx, c.cfg.Address+healthcheckPath)
	if err != nil {
		return StatusDisabled, err
	}

	var reply healthcheckReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil && resp.OK() {
		return StatusDisabled, fmt.Errorf("decode healthcheck: %w", err)
	}
	if !resp.OK() || !reply.Success {
		return StatusDisabled, &AgentError{Path: healthcheckPath, StatusCode: resp.StatusCode, Message: reply.Error}
	}

	version := resp.Headers.Get(coreVersionHeader)
	if version == "" {
		c.logger.Warn("You may be using @percy/agent which is no longer supported by this SDK. " +
			"Please uninstall @percy/agent and install @percy/cli instead.")
		return StatusDisabled, nil
	}
	if major, _, _ := strings.Cut(version, "."); major != "1" {
		c.logger.Warn("Unsupported Percy CLI version", logging.F("version", version))
		return StatusDisabled, nil
	}

	status, ok := parseStatus(reply.Type)
	if !ok {
		return StatusDisabled, fmt.Errorf("unknown agent type %q", reply.Type)
	}
	c.logger.Debug("percy agent detected",
		logging.F("type", status.String()),
		logging.F("version", version))
	return status, nil
}

// FetchDOM downloads the agent's DOM serialization script. Failures are
// returned as errors; there is no fallback script. A successful download is
// kept until ResetCache.
func (c *Client) FetchDOM(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.domCached {
		script := c.domScript
		c.mu.Unlock()
		return script, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthcheckTimeout)
	defer cancel()

	resp, err := c.wc.Get(ctx, c.cfg.Address+domScriptPath)
	if err != nil {
		return "", fmt.Errorf("fetch dom.js: %w", err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("fetch dom.js: %w", &AgentError{Path: domScriptPath, StatusCode: resp.StatusCode})
	}

	script := string(resp.Body)
	c.mu.Lock()
	c.domScript = script
	c.domCached = true
	c.mu.Unlock()
	return script, nil
}

type agentReply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// post submits body to path and returns the data field of a successful
// reply, or nil when the agent sent none.
func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SnapshotTimeout)
	defer cancel()

	hdrs := http.Header{}
	hdrs.Set("Content-Type", "application/json")
	resp, err := c.wc.Do(ctx, &webclient.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.Address + path,
		Headers: hdrs,
		Body:    payload,
	})
	if err != nil {
		return nil, err
	}

	var reply agentReply
	decodeErr := json.NewDecoder(bytes.NewReader(resp.Body)).Decode(&reply)
	if !resp.OK() || decodeErr != nil || !reply.Success {
		msg := reply.Error
		if msg == "" && decodeErr != nil {
			msg = "malformed reply: " + decodeErr.Error()
		}
		return nil, &AgentError{Path: path, StatusCode: resp.StatusCode, Message: msg}
	}
	if len(reply.Data) == 0 || string(reply.Data) == "null" {
		return nil, nil
	}
	return reply.Data, nil
}

func (c *Client) metadata() (string, []string) {
	return c.clientInfo, []string{
		c.driver.Name + "/" + c.driver.Version,
		"go/" + goVersion(),
	}
}

func defaultLogger(debug bool) logging.Logger {
	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	return logging.NewWriterLogger("percy", os.Stdout, level)
}
