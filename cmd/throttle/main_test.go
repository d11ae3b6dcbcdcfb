package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

const testConfig = `
limits:
  limiters:
    - name: window
      type: fixed_window
      window: 100ms
      permits: 2
    - name: bucket
      type: token_bucket
      epoch: 1s
      epoch_permits: 100
      max_burst: 10
  groups:
    - name: api
      limiters: [window, bucket]
telemetry:
  logging:
    level: error
  metrics:
    enabled: false
`

// useConfig writes contents to a temp file and points --config at it.
func useConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "throttle.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	origFile, origVerbose := cfgFile, verbose
	t.Cleanup(func() { cfgFile, verbose = origFile, origVerbose })
	cfgFile = path
	verbose = false
	return path
}

// testCommand returns a command whose stdout is captured.
func testCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	return cmd, &buf
}
