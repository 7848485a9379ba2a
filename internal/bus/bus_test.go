package bus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestPidManagerBasics(t *testing.T) {
	tempDir := t.TempDir()
	testPidManager := &pidManager{
		path: filepath.Join(tempDir, PidName),
	}

	t.Run("create and remove PID file", func(t *testing.T) {
		if err := testPidManager.create(); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		pidData, err := os.ReadFile(testPidManager.path)
		if err != nil {
			t.Fatalf("failed to read PID file: %v", err)
		}
		expectedPid := strconv.Itoa(os.Getpid())
		if string(pidData) != expectedPid {
			t.Errorf("PID file contains %q, expected %q", string(pidData), expectedPid)
		}

		if err := testPidManager.remove(); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if _, err := os.Stat(testPidManager.path); !os.IsNotExist(err) {
			t.Error("PID file should not exist after removal")
		}
	})

	t.Run("checkExisting with no PID file", func(t *testing.T) {
		if err := testPidManager.checkExisting(); err != nil {
			t.Errorf("checkExisting should not error when no PID file exists: %v", err)
		}
	})

	t.Run("checkExisting with current process", func(t *testing.T) {
		if err := testPidManager.create(); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		defer testPidManager.remove()

		if err := testPidManager.checkExisting(); err == nil {
			t.Error("checkExisting should fail when process is running")
		}
	})

	staleTests := []struct {
		name    string
		content string
	}{
		{"stale PID", "99999999"},
		{"invalid PID", "invalid"},
		{"empty file", ""},
	}
	for _, tt := range staleTests {
		t.Run("checkExisting with "+tt.name, func(t *testing.T) {
			if err := os.WriteFile(testPidManager.path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write PID file: %v", err)
			}
			if err := testPidManager.checkExisting(); err != nil {
				t.Errorf("checkExisting should succeed: %v", err)
			}
			if _, err := os.Stat(testPidManager.path); !os.IsNotExist(err) {
				t.Error("PID file should be removed")
			}
		})
	}
}

func TestIsProcessAlive(t *testing.T) {
	pm := &pidManager{}

	if !pm.isProcessAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if pm.isProcessAlive(99999999) {
		t.Error("non-existent process should not be alive")
	}
	if pm.isProcessAlive(0) || pm.isProcessAlive(-1) {
		t.Error("non-positive PIDs are never alive")
	}
}

func TestSocketManager_DialWithoutListener(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
	if _, err := sm.dial(); err == nil {
		t.Error("dial should fail when no listener exists")
	}
	if _, err := sm.send(CmdStatus); err == nil {
		t.Error("send should fail when no listener exists")
	}
}

func TestServe(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
	ln, err := sm.listen()
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	handler := HandlerFunc(func(ctx context.Context, cmd byte) string {
		switch cmd {
		case CmdStart:
			return OK("Dictation started")
		case CmdStatus:
			return Status("state=running\nsession=abc")
		case CmdVersion:
			return Status("proto=" + ProtoVer)
		default:
			return Err(fmt.Sprintf("unknown=%q", cmd))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, handler) }()

	tests := []struct {
		cmd      byte
		expected string
	}{
		{CmdStart, "OK Dictation started\n"},
		{CmdStatus, "STATUS state=running session=abc\n"},
		{CmdVersion, fmt.Sprintf("STATUS proto=%s\n", ProtoVer)},
		{'x', "ERR unknown='x'\n"},
	}

	for _, tt := range tests {
		t.Run(string(tt.cmd), func(t *testing.T) {
			resp, err := sm.send(tt.cmd)
			if err != nil {
				t.Fatalf("send failed: %v", err)
			}
			if resp != tt.expected {
				t.Errorf("got %q, expected %q", resp, tt.expected)
			}
		})
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after cancel")
	}
}

func TestServe_EmptyLine(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
	ln, err := sm.listen()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Serve(ctx, ln, HandlerFunc(func(context.Context, byte) string { return OK("") }))

	c, err := sm.dial()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Write([]byte("\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, _ := c.Read(buf)
	if string(buf[:n]) != "ERR empty\n" {
		t.Errorf("got %q", string(buf[:n]))
	}
}

func TestReply(t *testing.T) {
	tests := []struct {
		line, kind, msg string
	}{
		{"OK Dictation started\n", "OK", "Dictation started"},
		{"STATUS state=stopped\n", "STATUS", "state=stopped"},
		{"ERR dictation already running\r\n", "ERR", "dictation already running"},
		{"OK", "OK", ""},
	}
	for _, tt := range tests {
		kind, msg := Reply(tt.line)
		if kind != tt.kind || msg != tt.msg {
			t.Errorf("Reply(%q) = %q, %q; want %q, %q", tt.line, kind, msg, tt.kind, tt.msg)
		}
	}
}

func TestPathFunctions(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	sock, err := getSockPath()
	if err != nil {
		t.Fatalf("getSockPath failed: %v", err)
	}
	if !filepath.IsAbs(sock) || filepath.Base(sock) != SockName {
		t.Errorf("unexpected socket path %s", sock)
	}
	if filepath.Base(filepath.Dir(sock)) != "quilldict" {
		t.Errorf("socket should live in a quilldict dir, got %s", sock)
	}

	pid, err := getPidPath()
	if err != nil {
		t.Fatalf("getPidPath failed: %v", err)
	}
	if filepath.Base(pid) != PidName {
		t.Errorf("unexpected pid path %s", pid)
	}
}

func TestPublicAPIWithTempDirs(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if err := CheckExistingDaemon(); err != nil {
		t.Errorf("CheckExistingDaemon should succeed when no daemon running: %v", err)
	}
	if err := CreatePidFile(); err != nil {
		t.Fatalf("CreatePidFile failed: %v", err)
	}
	if err := CheckExistingDaemon(); err == nil {
		t.Error("CheckExistingDaemon should fail while this process owns the pid file")
	}
	if err := RemovePidFile(); err != nil {
		t.Fatalf("RemovePidFile failed: %v", err)
	}
}
