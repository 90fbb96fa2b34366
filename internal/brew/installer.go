package brew

import (
	"fmt"
	"path/filepath"
)

// uninstallCommands returns the interactive and silent commands that remove
// pkg.
func uninstallCommands(pkg *Package) (standard, silent string) {
	flag := "--formula"
	if pkg.IsCask {
		flag = "--cask"
	}
	standard = fmt.Sprintf("brew uninstall %s %s", flag, pkg.FullName)
	silent = fmt.Sprintf("brew uninstall --force %s %s", flag, pkg.FullName)
	return standard, silent
}

// installLocation returns where pkg lives under prefix.
func installLocation(prefix string, pkg *Package) string {
	if prefix == "" {
		return ""
	}
	if pkg.IsCask {
		return filepath.Join(prefix, "Caskroom", pkg.Name, pkg.Version)
	}
	return filepath.Join(prefix, "Cellar", pkg.Name, pkg.Version)
}
