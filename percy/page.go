package percy

import (
	"context"
	"encoding/json"
)

// Page is the part of a browser tab the client drives.
//
// With no args, Evaluate runs expression as a script and returns its
// completion value. With args, expression must evaluate to a function which
// is called with the JSON-encoded args. Results are returned as raw JSON.
type Page interface {
	Evaluate(ctx context.Context, expression string, args ...any) (json.RawMessage, error)
	URL(ctx context.Context) (string, error)
}

// GUIDs identify a tab, its main frame and its owning browser to an
// automate-mode agent.
type GUIDs struct {
	Page    string
	Frame   string
	Browser string
}

// AutomatePage is a Page that can report its GUIDs.
type AutomatePage interface {
	Page
	GUIDs(ctx context.Context) (GUIDs, error)
}

// Cookie is a browser cookie as the agent expects it in a DOM snapshot.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieSource is implemented by pages that can list their cookies. When a
// page passed to Snapshot implements it, the cookies are sent along with the
// serialized DOM.
type CookieSource interface {
	Cookies(ctx context.Context) ([]Cookie, error)
}

// Driver names the automation library in environment_info and the
// framework tag sent with automate screenshots.
type Driver struct {
	Name      string
	Version   string
	Framework string
}

// DefaultDriver describes chromedp as linked into the running binary.
func DefaultDriver() Driver {
	return Driver{
		Name:      "chromedp",
		Version:   ModuleVersion("github.com/chromedp/chromedp"),
		Framework: "playwright",
	}
}
