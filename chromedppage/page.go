// Package chromedppage adapts a chromedp tab to percy.Page and
// percy.AutomatePage.
package chromedppage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/percy-chromedp/percy"
)

// Page drives one chromedp tab. The context must come from
// chromedp.NewContext.
type Page struct {
	ctx context.Context
}

// New wraps the tab behind ctx.
func New(ctx context.Context) *Page {
	return &Page{ctx: ctx}
}

// Open creates a new tab in the browser behind browserCtx and navigates it
// to url. Calling the returned cancel closes the tab.
func Open(browserCtx context.Context, url string, settle time.Duration) (*Page, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("chromedppage: open %s: %w", url, err)
	}
	return &Page{ctx: tabCtx}, cancel, nil
}

// Driver describes chromedp for percy.WithDriver.
func Driver() percy.Driver {
	return percy.DefaultDriver()
}

// Context returns the tab context.
func (p *Page) Context() context.Context {
	return p.ctx
}

// run executes actions on the tab, bounded by ctx as well as the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Evaluate implements percy.Page. Promises are awaited.
func (p *Page) Evaluate(ctx context.Context, expression string, args ...any) (json.RawMessage, error) {
	script, err := callExpression(expression, args)
	if err != nil {
		return nil, err
	}

	var obj *runtime.RemoteObject
	if err := p.run(ctx, evaluate(script, &obj)); err != nil {
		return nil, fmt.Errorf("chromedppage: evaluate: %w", err)
	}
	return remoteValue(obj)
}

// evaluate runs script and stores its result in obj. Results are requested
// by value: chromedp only does that itself for non-RemoteObject targets.
func evaluate(script string, obj **runtime.RemoteObject) chromedp.Action {
	return chromedp.Evaluate(script, obj, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true).WithReturnByValue(true)
	})
}

// remoteValue maps an evaluation result to raw JSON. undefined and null
// become null; a result that came back by reference is an error.
func remoteValue(obj *runtime.RemoteObject) (json.RawMessage, error) {
	if obj == nil || obj.Type == runtime.TypeUndefined {
		return json.RawMessage("null"), nil
	}
	if len(obj.Value) == 0 {
		if obj.Subtype == runtime.SubtypeNull {
			return json.RawMessage("null"), nil
		}
		return nil, fmt.Errorf("chromedppage: evaluate: %s result has no value", obj.Type)
	}
	return json.RawMessage(obj.Value), nil
}

// callExpression turns a function expression and its args into a call.
func callExpression(expression string, args []any) (string, error) {
	if len(args) == 0 {
		return expression, nil
	}
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("chromedppage: encode argument: %w", err)
		}
		encoded = append(encoded, string(b))
	}
	return "(" + expression + ")(" + strings.Join(encoded, ", ") + ")", nil
}

// URL implements percy.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("chromedppage: location: %w", err)
	}
	return loc, nil
}

// GUIDs implements percy.AutomatePage: the tab's target id, its main frame
// id and its browser context id.
func (p *Page) GUIDs(ctx context.Context) (percy.GUIDs, error) {
	var ids percy.GUIDs
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		info, err := target.GetTargetInfo().Do(ctx)
		if err != nil {
			return fmt.Errorf("target info: %w", err)
		}
		tree, err := cdppage.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("frame tree: %w", err)
		}
		ids.Page = string(info.TargetID)
		ids.Browser = string(info.BrowserContextID)
		if tree != nil && tree.Frame != nil {
			ids.Frame = string(tree.Frame.ID)
		}
		return nil
	}))
	if err != nil {
		return percy.GUIDs{}, fmt.Errorf("chromedppage: guids: %w", err)
	}
	return ids, nil
}

// Cookies implements percy.CookieSource.
func (p *Page) Cookies(ctx context.Context) ([]percy.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("chromedppage: cookies: %w", err)
	}

	out := make([]percy.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, percy.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out, nil
}

var (
	_ percy.AutomatePage = (*Page)(nil)
	_ percy.CookieSource = (*Page)(nil)
)
