package percy

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is the SDK version reported to the agent in client_info.
const Version = "1.0.0"

// ClientName prefixes Version in client_info.
const ClientName = "percy-chromedp-go"

// ModuleVersion returns the version of the named module as recorded in the
// running binary's build info, or "unknown".
func ModuleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path != path {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return strings.TrimPrefix(dep.Replace.Version, "v")
		}
		return strings.TrimPrefix(dep.Version, "v")
	}
	return "unknown"
}

func goVersion() string {
	return strings.TrimPrefix(runtime.Version(), "go")
}
