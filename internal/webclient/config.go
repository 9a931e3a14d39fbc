package webclient

import "time"

// Config configures NewNetHTTPClient. Per-request deadlines come from the
// caller's context; Timeout is only the outer bound of the http.Client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}
