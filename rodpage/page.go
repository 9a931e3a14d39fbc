// Package rodpage adapts a go-rod page to percy.Page and percy.AutomatePage.
package rodpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/raysh454/percy-chromedp/percy"
)

// Page wraps a *rod.Page.
type Page struct {
	Page *rod.Page
}

// New wraps p.
func New(p *rod.Page) *Page {
	return &Page{Page: p}
}

// Open creates a tab on b, optionally with stealth evasions applied, and
// waits for url to load.
func Open(ctx context.Context, b *rod.Browser, url string, useStealth bool) (*Page, error) {
	if b == nil {
		return nil, errors.New("rodpage: no browser")
	}

	var p *rod.Page
	var err error
	if useStealth {
		p, err = stealth.Page(b)
	} else {
		p, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("rodpage: create tab: %w", err)
	}

	if err := p.Context(ctx).Navigate(url); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("rodpage: navigate %s: %w", url, err)
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("rodpage: wait load %s: %w", url, err)
	}
	return &Page{Page: p}, nil
}

// Driver describes go-rod for percy.WithDriver.
func Driver() percy.Driver {
	return percy.Driver{
		Name:      "go-rod",
		Version:   percy.ModuleVersion("github.com/go-rod/rod"),
		Framework: "playwright",
	}
}

// Evaluate implements percy.Page. Promises are awaited.
func (p *Page) Evaluate(ctx context.Context, expression string, args ...any) (json.RawMessage, error) {
	script := expression
	if len(args) > 0 {
		encoded := make([]string, 0, len(args))
		for _, a := range args {
			b, err := json.Marshal(a)
			if err != nil {
				return nil, fmt.Errorf("rodpage: encode argument: %w", err)
			}
			encoded = append(encoded, string(b))
		}
		script = "(" + expression + ")(" + strings.Join(encoded, ", ") + ")"
	}

	res, err := proto.RuntimeEvaluate{
		Expression:    script,
		ReturnByValue: true,
		AwaitPromise:  true,
	}.Call(p.Page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("rodpage: evaluate: %w", err)
	}
	if res.ExceptionDetails != nil {
		return nil, fmt.Errorf("rodpage: evaluate: %s", res.ExceptionDetails.Text)
	}
	if res.Result == nil || res.Result.Type == proto.RuntimeRemoteObjectTypeUndefined || res.Result.Value.Nil() {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(res.Result.Value.JSON("", "")), nil
}

// URL implements percy.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.Page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("rodpage: target info: %w", err)
	}
	return info.URL, nil
}

// GUIDs implements percy.AutomatePage.
func (p *Page) GUIDs(ctx context.Context) (percy.GUIDs, error) {
	page := p.Page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return percy.GUIDs{}, fmt.Errorf("rodpage: target info: %w", err)
	}
	tree, err := proto.PageGetFrameTree{}.Call(page)
	if err != nil {
		return percy.GUIDs{}, fmt.Errorf("rodpage: frame tree: %w", err)
	}

	ids := percy.GUIDs{
		Page:    string(info.TargetID),
		Browser: string(info.BrowserContextID),
	}
	if tree.FrameTree != nil && tree.FrameTree.Frame != nil {
		ids.Frame = string(tree.FrameTree.Frame.ID)
	}
	return ids, nil
}

// Cookies implements percy.CookieSource.
func (p *Page) Cookies(ctx context.Context) ([]percy.Cookie, error) {
	cookies, err := p.Page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("rodpage: cookies: %w", err)
	}
	out := make([]percy.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, percy.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.Page != nil {
		return p.Page.Close()
	}
	return nil
}

var (
	_ percy.AutomatePage = (*Page)(nil)
	_ percy.CookieSource = (*Page)(nil)
)
