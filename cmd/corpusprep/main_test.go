package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKSSCommand(t *testing.T) {
	master := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(master, "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(master, "1", "1_0000.wav"), []byte("RIFF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(master, "script.txt"), []byte("1/1_0000.wav|a|b|c|1.0|d\n"), 0o644))

	out, err := runCmd(t, "kss", master, "--transcript", "script.txt", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Copied 1 waves and wrote 1 texts")

	text, err := os.ReadFile(filepath.Join(master, "texts", "1_0000.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(text))
}

func TestKSSCommand_MissingArg(t *testing.T) {
	_, err := runCmd(t, "kss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestKSSCommand_MissingTranscript(t *testing.T) {
	_, err := runCmd(t, "kss", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to prepare kss corpus")
}
