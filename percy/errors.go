package percy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFunctionCall is returned by AutomateScreenshot when the agent
	// runs a web (DOM) build. It is a caller mistake, not an agent outage.
	ErrInvalidFunctionCall = errors.New("Invalid function call - AutomateScreenshot(). " +
		"Please use Snapshot() for taking snapshots. AutomateScreenshot() should be used only " +
		"while using Percy with Automate. For more information on usage of PercySnapshot, refer " +
		"https://www.browserstack.com/docs/percy/integrate/overview")

	// ErrInvalidSnapshotCall is returned by Snapshot when the agent runs an
	// automate build.
	ErrInvalidSnapshotCall = errors.New("Invalid function call - Snapshot(). " +
		"Please use AutomateScreenshot() while using Percy with Automate. " +
		"For more information on usage of PercySnapshot, refer " +
		"https://www.browserstack.com/docs/percy/integrate/overview")

	ErrEmptyName = errors.New("percy: snapshot name is required")
	ErrNilPage   = errors.New("percy: page is nil")
)

// AgentError carries the failure an agent reported for a request.
type AgentError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *AgentError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request was not successful"
	}
	return fmt.Sprintf("percy agent %s: %s (status %d)", e.Path, msg, e.StatusCode)
}
