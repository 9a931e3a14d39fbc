package agentstub

// Mode is the build type the stub advertises on its healthcheck.
type Mode string

const (
	ModeWeb      Mode = "web"
	ModeAutomate Mode = "automate"
	// ModeDisabled answers the healthcheck with success=false.
	ModeDisabled Mode = "disabled"
)

// Config holds configuration for the stub agent.
type Config struct {
	// ListenAddr is the address ListenAndServe binds.
	ListenAddr string

	// Mode is the advertised build type.
	Mode Mode

	// CoreVersion is sent in the x-percy-core-version header. Empty
	// imitates the retired @percy/agent, which sent none.
	CoreVersion string

	// DBPath is the SQLite file for received snapshots; ":memory:" keeps
	// them in memory.
	DBPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  "127.0.0.1:5338",
		Mode:        ModeWeb,
		CoreVersion: "1.30.0",
		DBPath:      ":memory:",
	}
}
