package config

// Version is the release reported by every binary, the API root and the
// MCP server implementation info. Release builds may override it with
// -ldflags "-X github.com/JAMBAMSF/jagent/internal/config.Version=...".
var Version = "0.3.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
