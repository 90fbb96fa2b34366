package watcher

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestIsDaemonRunning(t *testing.T) {
	tests := []struct {
		name        string
		content     *string
		want        bool
		wantRemoved bool
	}{
		{name: "no pid file"},
		{name: "current process", content: ptr(strconv.Itoa(os.Getpid()) + "\n"), want: true},
		{name: "dead process", content: ptr("999999\n"), wantRemoved: true},
		{name: "invalid pid", content: ptr("not-a-number\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pidFile := filepath.Join(t.TempDir(), "watch.pid")
			if tt.content != nil {
				if err := os.WriteFile(pidFile, []byte(*tt.content), 0644); err != nil {
					t.Fatalf("failed to write PID file: %v", err)
				}
			}

			running, err := IsDaemonRunning(pidFile)
			if err != nil {
				t.Fatalf("IsDaemonRunning() error = %v", err)
			}
			if running != tt.want {
				t.Errorf("IsDaemonRunning() = %v, want %v", running, tt.want)
			}
			if tt.wantRemoved {
				if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
					t.Error("stale PID file was not removed")
				}
			}
		})
	}
}

func TestStopDaemon_NotRunning(t *testing.T) {
	if err := StopDaemon(filepath.Join(t.TempDir(), "missing.pid")); err == nil {
		t.Error("StopDaemon() expected error for missing PID file")
	}
}

func TestReadWritePID(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "watch.pid")
	if err := writePID(pidFile, 4242); err != nil {
		t.Fatalf("writePID() error: %v", err)
	}
	pid, err := readPID(pidFile)
	if err != nil || pid != 4242 {
		t.Errorf("readPID() = %d, %v; want 4242", pid, err)
	}
}

func ptr(s string) *string { return &s }
