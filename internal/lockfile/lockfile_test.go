package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if parsePID(string(data)) != os.Getpid() {
		t.Errorf("lock file content %q does not hold our pid", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer first.Release()

	_, err = AcquireLock(dir)
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %v", err)
	}
	if !errors.Is(err, syscall.EWOULDBLOCK) {
		t.Errorf("expected EWOULDBLOCK cause, got %v", lockErr.Cause)
	}
	if !strings.Contains(lockErr.Holder, "pid") {
		t.Errorf("holder = %q, want pid description", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), "another FastCab instance") {
		t.Errorf("unexpected message: %s", err)
	}

	// The holder's pid survives the failed attempt.
	data, _ := os.ReadFile(first.Path())
	if parsePID(string(data)) != os.Getpid() {
		t.Errorf("failed attempt clobbered lock file: %q", data)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		lock, err := AcquireLock(dir)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("attempt %d release: %v", i+1, err)
		}
	}
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "nested")
	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestParsePID(t *testing.T) {
	tests := map[string]int{
		"pid=1234\n":         1234,
		"host=a\npid=42\n":   42,
		"pid=abc":            0,
		"":                   0,
		"something else":     0,
		"  pid=77  \nmore\n": 77,
	}
	for in, want := range tests {
		if got := parsePID(in); got != want {
			t.Errorf("parsePID(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if processAlive(999999) {
		t.Error("pid 999999 should not exist")
	}
}
