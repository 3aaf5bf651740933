package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"redeploy/internal/deploy"
	"redeploy/internal/execx"
)

// MockCommander is a mock for testing.
type MockCommander struct {
	// Calls records all command lines in execution order.
	Calls []string
	// FailOn maps a command line prefix to the exit code it returns.
	FailOn map[string]int
	// Output maps a command line prefix to the stdout returned by Capture.
	Output map[string]string
}

func (m *MockCommander) Run(ctx context.Context, dir, name string, args ...string) execx.Result {
	line := deploy.Command{Name: name, Args: args}.String()
	m.Calls = append(m.Calls, line)
	return m.result(line)
}

func (m *MockCommander) Capture(ctx context.Context, dir, name string, args ...string) (string, execx.Result) {
	line := deploy.Command{Name: name, Args: args}.String()
	m.Calls = append(m.Calls, line)
	for prefix, out := range m.Output {
		if strings.HasPrefix(line, prefix) {
			return out, m.result(line)
		}
	}
	return "", m.result(line)
}

func (m *MockCommander) result(line string) execx.Result {
	for prefix, code := range m.FailOn {
		if strings.HasPrefix(line, prefix) {
			return execx.Result{Code: code, Err: fmt.Errorf("exit status %d", code)}
		}
	}
	return execx.Result{}
}

// CalledWith reports whether any recorded command starts with prefix.
func (m *MockCommander) CalledWith(prefix string) bool {
	for _, c := range m.Calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// createCheckout creates a directory that looks like a git working copy.
func createCheckout(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatalf("failed to create .git directory: %v", err)
	}
	return dir
}
