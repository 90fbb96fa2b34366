package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag of cmd and its subcommands to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the CLI with args against an empty config directory and
// returns what it printed to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	defer RootCmd.SetArgs(nil)

	err := RootCmd.Execute()
	return out.String(), err
}

// mustExecute is execute for commands expected to succeed.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("pkgcatalog %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// writeFile writes content to dir/rel, creating directories.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "pkgcatalog" {
		t.Errorf("expected Use to be 'pkgcatalog', got '%s'", RootCmd.Use)
	}
	if RootCmd.Short == "" || RootCmd.Long == "" {
		t.Error("expected Short and Long descriptions to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		found[cmd.Name()] = true
	}

	for _, expected := range []string{
		"create", "info", "migrate", "add", "update", "upsert", "remove", "index",
		"search", "versions", "deps", "changes", "export", "check", "sync-installed", "watch",
	} {
		if !found[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"db", "config", "verbose"} {
		flag := RootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected --%s flag to be registered", name)
			continue
		}
		if flag.Usage == "" {
			t.Errorf("expected --%s flag to have usage text", name)
		}
	}
}

func TestCommandsAreDocumented(t *testing.T) {
	for _, cmd := range RootCmd.Commands() {
		if cmd.Short == "" {
			t.Errorf("command %q has no Short description", cmd.Name())
		}
		if cmd.RunE == nil {
			t.Errorf("command %q has no RunE", cmd.Name())
		}
	}
}

func TestGetDBPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	oldDB, oldCfg := dbPath, cfg.Database
	defer func() { dbPath, cfg.Database = oldDB, oldCfg }()

	dbPath, cfg.Database = "", ""
	got, err := getDBPath()
	if err != nil {
		t.Fatalf("getDBPath() error: %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join(".pkgcatalog", "index.db")) {
		t.Errorf("default getDBPath() = %q", got)
	}

	cfg.Database = "/from/config.db"
	if got, _ := getDBPath(); got != "/from/config.db" {
		t.Errorf("getDBPath() with config = %q, want /from/config.db", got)
	}

	dbPath = "/from/flag.db"
	if got, _ := getDBPath(); got != "/from/flag.db" {
		t.Errorf("getDBPath() with flag = %q, want /from/flag.db", got)
	}
}

func TestSetup_ReadsConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "configured.db")
	writeFile(t, dir, "config.toml", "database = \""+filepath.ToSlash(db)+"\"\nschema = \"1.7\"\n")

	resetFlags(RootCmd)
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetArgs([]string{"--config", dir, "create"})
	defer RootCmd.SetArgs(nil)
	if err := RootCmd.Execute(); err != nil {
		t.Fatalf("create with config: %v", err)
	}

	if !strings.Contains(out.String(), "schema 1.7") {
		t.Errorf("create output = %q, want schema 1.7", out.String())
	}
	if _, err := os.Stat(db); err != nil {
		t.Errorf("configured catalog not created: %v", err)
	}
}
