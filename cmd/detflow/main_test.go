package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/cli"
)

func TestRun_Help(t *testing.T) {
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"detflow", "--help"})

	require.NoError(t, err)
	require.Contains(t, out.String(), "detflow")
	require.Contains(t, out.String(), "run")
}

func TestRun_InvalidGraph(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte("node \"a\" {\n"), 0o600))
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"detflow", "run", filePath})

	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load graph")
}

func TestRun_UsageError(t *testing.T) {
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"detflow", "run"})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}
