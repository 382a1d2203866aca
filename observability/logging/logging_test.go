package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("lottod", "test", Options{Output: &buf, Level: "debug"})
	logger.Debug("round opened", slog.String("round", "abc"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "round opened", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "lottod", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupTextAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "node.log")
	logger := Setup("lottod", "", Options{Output: &buf, Format: "text", File: path})
	logger.Info("hello")
	logger.Debug("suppressed")
	require.True(t, strings.Contains(buf.String(), "hello"))
	require.False(t, strings.Contains(buf.String(), "suppressed"))
}

func TestSetupRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("lottod", "", Options{Output: &buf})
	logger.Info("indexer enabled",
		slog.String("indexer_dsn", "postgres://user:pw@db/lotto"),
		slog.String("Authorization", "Bearer abc"),
		slog.String("auth_token", ""),
		slog.String("round", "abc"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, RedactedValue, line["indexer_dsn"])
	require.Equal(t, RedactedValue, line["Authorization"])
	require.Equal(t, "", line["auth_token"])
	require.Equal(t, "abc", line["round"])
}

func TestIsSensitive(t *testing.T) {
	require.True(t, IsSensitive("jwt_secret"))
	require.True(t, IsSensitive(" Passphrase "))
	require.False(t, IsSensitive("tokens_sold"))
	require.False(t, IsSensitive("signer"))
	require.Equal(t, " ", MaskValue(" "))
	require.Equal(t, RedactedValue, MaskValue("x"))
}
