package main

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("hex by default", func(t *testing.T) {
		out := &bytes.Buffer{}

		err := run(out, rand.Reader, nil)

		require.NoError(t, err)
		require.Len(t, strings.TrimSpace(out.String()), 64)
	})

	t.Run("base64", func(t *testing.T) {
		out := &bytes.Buffer{}

		err := run(out, rand.Reader, []string{"--format", "base64", "-n", "48"})

		require.NoError(t, err)
		require.Len(t, strings.TrimSpace(out.String()), 64)
	})

	t.Run("short key rejected", func(t *testing.T) {
		err := run(&bytes.Buffer{}, rand.Reader, []string{"-n", "8"})

		require.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := run(&bytes.Buffer{}, rand.Reader, []string{"-f", "pem"})

		require.Error(t, err)
	})
}
