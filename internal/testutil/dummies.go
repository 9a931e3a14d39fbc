// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/percy-chromedp/internal/webclient"
	"github.com/raysh454/percy-chromedp/logging"
	"github.com/raysh454/percy-chromedp/percy"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ErrorCount returns how many Error entries were recorded.
func (l *DummyLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Errors)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// Reply is a canned response for DummyWebClient.
type Reply struct {
	Status  int
	Headers http.Header
	Body    string
	Err     error
}

// JSONReply builds a 200 Reply whose body is v encoded as JSON.
func JSONReply(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal reply: %v", err))
	}
	return Reply{Status: http.StatusOK, Body: string(b)}
}

// Call records one request seen by DummyWebClient.
type Call struct {
	Request     *webclient.Request
	Deadline    time.Time
	HasDeadline bool
}

// DummyWebClient implements webclient.WebClient.
// Replies are keyed by "METHOD URL". Unknown keys answer 404.
type DummyWebClient struct {
	mu      sync.Mutex
	Replies map[string]Reply
	Calls   []Call
}

// NewDummyWebClient returns an empty DummyWebClient.
func NewDummyWebClient() *DummyWebClient {
	return &DummyWebClient{Replies: map[string]Reply{}}
}

// On registers the reply for method and url.
func (d *DummyWebClient) On(method, url string, r Reply) *DummyWebClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Replies[method+" "+url] = r
	return d
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if req == nil {
		return nil, webclient.ErrNilRequest
	}
	deadline, ok := ctx.Deadline()

	d.mu.Lock()
	d.Calls = append(d.Calls, Call{Request: req, Deadline: deadline, HasDeadline: ok})
	reply, found := d.Replies[req.Method+" "+req.URL]
	d.mu.Unlock()

	if !found {
		return &webclient.Response{StatusCode: http.StatusNotFound, Headers: http.Header{}}, nil
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	hdrs := reply.Headers
	if hdrs == nil {
		hdrs = http.Header{}
	}
	return &webclient.Response{
		StatusCode: reply.Status,
		Headers:    hdrs,
		Body:       []byte(reply.Body),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// CallsTo returns the recorded calls for method and url.
func (d *DummyWebClient) CallsTo(method, url string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if c.Request.Method == method && c.Request.URL == url {
			out = append(out, c)
		}
	}
	return out
}

// ─── Page ──────────────────────────────────────────────────────────────

// Evaluation records one FakePage.Evaluate call.
type Evaluation struct {
	Expression string
	Args       []any
}

// FakePage implements percy.AutomatePage and percy.CookieSource.
// Evaluate answers from Results in order; once exhausted it returns null.
type FakePage struct {
	mu          sync.Mutex
	PageURL     string
	IDs         percy.GUIDs
	Results     []json.RawMessage
	EvaluateErr error
	CookieJar   []percy.Cookie
	CookieErr   error
	Evaluations []Evaluation
}

// ErrNoGUIDs is returned by FakePage.GUIDs when IDs is empty.
var ErrNoGUIDs = errors.New("fake page has no guids")

func (p *FakePage) Evaluate(_ context.Context, expression string, args ...any) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Evaluations = append(p.Evaluations, Evaluation{Expression: expression, Args: args})
	if p.EvaluateErr != nil {
		return nil, p.EvaluateErr
	}
	if len(p.Results) == 0 {
		return json.RawMessage("null"), nil
	}
	r := p.Results[0]
	p.Results = p.Results[1:]
	return r, nil
}

func (p *FakePage) URL(context.Context) (string, error) {
	return p.PageURL, nil
}

func (p *FakePage) GUIDs(context.Context) (percy.GUIDs, error) {
	if p.IDs == (percy.GUIDs{}) {
		return percy.GUIDs{}, ErrNoGUIDs
	}
	return p.IDs, nil
}

func (p *FakePage) Cookies(context.Context) ([]percy.Cookie, error) {
	if p.CookieErr != nil {
		return nil, p.CookieErr
	}
	return p.CookieJar, nil
}

// JSONString encodes s as a JSON string value, the way a page returns a
// string from Evaluate.
func JSONString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
