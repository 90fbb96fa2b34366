package brew

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// brewInfoOutput is the structure of `brew info --json=v2 --installed`.
type brewInfoOutput struct {
	Formulae []brewFormulaInfo `json:"formulae"`
	Casks    []brewCaskInfo    `json:"casks"`
}

type brewFormulaInfo struct {
	Name      string                 `json:"name"`
	FullName  string                 `json:"full_name"`
	Tap       string                 `json:"tap"`
	Desc      string                 `json:"desc"`
	Homepage  string                 `json:"homepage"`
	Installed []brewInstalledVersion `json:"installed"`
	LinkedKeg string                 `json:"linked_keg,omitempty"`
}

type brewInstalledVersion struct {
	Version             string                  `json:"version"`
	Time                int64                   `json:"time,omitempty"`
	InstalledOnRequest  bool                    `json:"installed_on_request"`
	RuntimeDependencies []brewRuntimeDependency `json:"runtime_dependencies"`
}

type brewRuntimeDependency struct {
	FullName string `json:"full_name"`
	Version  string `json:"version"`
}

type brewCaskInfo struct {
	Token         string   `json:"token"`
	FullToken     string   `json:"full_token"`
	Tap           string   `json:"tap"`
	Name          []string `json:"name"`
	Desc          string   `json:"desc"`
	Homepage      string   `json:"homepage"`
	Installed     string   `json:"installed"`
	InstalledTime int64    `json:"installed_time,omitempty"`
}

// Runner executes a brew subcommand and returns its standard output.
type Runner func(args ...string) ([]byte, error)

func execRunner(args ...string) ([]byte, error) {
	cmd := exec.Command("brew", args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("brew %s failed: %w (stderr: %s)", strings.Join(args, " "), err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("brew %s failed: %w", strings.Join(args, " "), err)
	}
	return output, nil
}

// ListInstalled returns every installed formula and cask.
func ListInstalled(run Runner) ([]*Package, error) {
	output, err := run("info", "--json=v2", "--installed")
	if err != nil {
		return nil, err
	}
	return parseInstalled(output)
}

// parseInstalled converts `brew info --json=v2 --installed` output.
// Formulae with several installed versions report the linked one, or the
// last one listed when nothing is linked.
func parseInstalled(output []byte) ([]*Package, error) {
	var info brewInfoOutput
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse brew info output: %w", err)
	}

	var packages []*Package
	for _, f := range info.Formulae {
		if len(f.Installed) == 0 {
			continue
		}
		inst := f.Installed[len(f.Installed)-1]
		for _, candidate := range f.Installed {
			if candidate.Version == f.LinkedKeg {
				inst = candidate
			}
		}

		pkg := &Package{
			Name:      f.Name,
			FullName:  f.FullName,
			Version:   inst.Version,
			Desc:      f.Desc,
			Homepage:  f.Homepage,
			Tap:       f.Tap,
			OnRequest: inst.InstalledOnRequest,
		}
		if pkg.FullName == "" {
			pkg.FullName = f.Name
		}
		if inst.Time > 0 {
			pkg.InstalledAt = time.Unix(inst.Time, 0)
		}
		for _, d := range inst.RuntimeDependencies {
			pkg.Dependencies = append(pkg.Dependencies, d.FullName)
		}
		packages = append(packages, pkg)
	}

	for _, c := range info.Casks {
		if c.Installed == "" {
			continue
		}
		pkg := &Package{
			Name:      c.Token,
			FullName:  c.FullToken,
			Version:   c.Installed,
			Desc:      c.Desc,
			Homepage:  c.Homepage,
			Tap:       c.Tap,
			IsCask:    true,
			OnRequest: true,
		}
		if pkg.FullName == "" {
			pkg.FullName = c.Token
		}
		if len(c.Name) > 0 {
			pkg.Desc = strings.TrimSpace(c.Name[0] + " " + pkg.Desc)
		}
		if c.InstalledTime > 0 {
			pkg.InstalledAt = time.Unix(c.InstalledTime, 0)
		}
		packages = append(packages, pkg)
	}

	sort.Slice(packages, func(i, j int) bool { return packages[i].FullName < packages[j].FullName })
	return packages, nil
}

// GetBrewPrefix returns the Homebrew installation prefix.
func GetBrewPrefix(run Runner) (string, error) {
	output, err := run("--prefix")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// linkedCommands maps formula names to the executables they link into
// <prefix>/bin. Entries that are not symlinks into the Cellar are skipped.
func linkedCommands(prefix string) (map[string][]string, error) {
	binDir := filepath.Join(prefix, "bin")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read bin directory: %w", err)
	}

	commands := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fullPath := filepath.Join(binDir, entry.Name())
		info, err := os.Lstat(fullPath)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(binDir, target)
		}
		if name := extractPackageFromPath(target); name != "" {
			commands[name] = append(commands[name], entry.Name())
		}
	}
	return commands, nil
}

// extractPackageFromPath extracts the formula name from a Cellar path.
// Example: /opt/homebrew/Cellar/git/2.43.0/bin/git -> "git"
func extractPackageFromPath(path string) string {
	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	for i, part := range parts {
		if part == "Cellar" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
