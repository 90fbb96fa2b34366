package brew

import "time"

// Package is an installed Homebrew formula or cask.
type Package struct {
	Name        string
	FullName    string // tap qualified for third-party taps, e.g. "user/tap/tool"
	Version     string
	Desc        string
	Homepage    string
	Tap         string // e.g. "homebrew/core"
	IsCask      bool
	OnRequest   bool // installed explicitly rather than as a dependency
	InstalledAt time.Time
	// Dependencies are the full names of the runtime dependencies.
	Dependencies []string
	// Commands are the executables the package links into <prefix>/bin.
	Commands []string
}
