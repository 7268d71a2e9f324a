package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		out := &bytes.Buffer{}

		require.NoError(t, run(nil, out))

		key, err := hex.DecodeString(strings.TrimSpace(out.String()))
		require.NoError(t, err)
		require.Len(t, key, 32)
	})

	t.Run("custom length", func(t *testing.T) {
		out := &bytes.Buffer{}

		require.NoError(t, run([]string{"--bytes", "64"}, out))

		require.Len(t, strings.TrimSpace(out.String()), 128)
	})

	t.Run("too short", func(t *testing.T) {
		require.Error(t, run([]string{"-b", "8"}, &bytes.Buffer{}))
	})
}
