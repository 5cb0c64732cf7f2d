// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, slog.LevelInfo, cfg.Level())

	policy, err := cfg.NullPolicy()
	require.NoError(t, err)
	assert.Equal(t, PassThrough(), policy)
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := ParseConfig(`
host = " db1 "
port = 9000
user = "admin"
enable_encryption = false
null_policy = "fill:-1.5"
streaming_port = 20001
log_level = "debug"
gateway_prefix = "/api/"
`)
	require.NoError(t, err)
	assert.Equal(t, "db1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "admin", cfg.User)
	assert.False(t, cfg.EnableEncryption)
	assert.Equal(t, 20001, cfg.StreamingPort)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "/api", cfg.GatewayPrefix)

	policy, err := cfg.NullPolicy()
	require.NoError(t, err)
	v := intVector(t, NullScalar(TypeInt))
	policy.Apply(v)
	assert.False(t, v.HasNull())
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"unknown key", `colour = "red"`, `unknown config key "colour"`},
		{"bad port", `port = 70000`, "port 70000 out of range"},
		{"negative streaming port", `streaming_port = -1`, "streaming_port -1 out of range"},
		{"empty host", `host = ""`, "host is required"},
		{"null policy", `null_policy = "drop"`, `unknown null_policy "drop"`},
		{"fill value", `null_policy = "fill:x"`, "bad fill value"},
		{"log level", `log_level = "loud"`, `unknown log_level "loud"`},
		{"syntax", `port = `, "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddb.toml")
	require.NoError(t, os.WriteFile(path, []byte("null_policy = \"zero\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "zero", cfg.NullPolicyName)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
	lvl, err = ParseLogLevel(" error ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, lvl)
}
