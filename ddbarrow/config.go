// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds connection, codec and gateway settings.
type Config struct {
	Host             string
	Port             int
	User             string
	Password         string
	EnableEncryption bool
	NullPolicyName   string
	StreamingPort    int
	LogLevel         string
	GatewayAddr      string
	GatewayPrefix    string
}

// DefaultConfig returns the settings used when a key is absent.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             8848,
		EnableEncryption: true,
		NullPolicyName:   "nan",
		LogLevel:         "INFO",
		GatewayPrefix:    "/ddb",
	}
}

type fileConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	User             string `toml:"user"`
	Password         string `toml:"password"`
	EnableEncryption bool   `toml:"enable_encryption"`
	NullPolicy       string `toml:"null_policy"`
	StreamingPort    int    `toml:"streaming_port"`
	LogLevel         string `toml:"log_level"`
	GatewayAddr      string `toml:"gateway_addr"`
	GatewayPrefix    string `toml:"gateway_prefix"`
}

// LoadConfig reads a TOML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return applyConfig(raw, meta)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return applyConfig(raw, meta)
}

func applyConfig(raw fileConfig, meta toml.MetaData) (Config, error) {
	cfg := DefaultConfig()
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("user") {
		cfg.User = raw.User
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}
	if meta.IsDefined("enable_encryption") {
		cfg.EnableEncryption = raw.EnableEncryption
	}
	if meta.IsDefined("null_policy") {
		cfg.NullPolicyName = strings.TrimSpace(raw.NullPolicy)
	}
	if meta.IsDefined("streaming_port") {
		cfg.StreamingPort = raw.StreamingPort
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("gateway_addr") {
		cfg.GatewayAddr = strings.TrimSpace(raw.GatewayAddr)
	}
	if meta.IsDefined("gateway_prefix") {
		cfg.GatewayPrefix = strings.TrimRight(strings.TrimSpace(raw.GatewayPrefix), "/")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ports, the null policy name and the log level.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.StreamingPort < 0 || c.StreamingPort > 65535 {
		return fmt.Errorf("config: streaming_port %d out of range", c.StreamingPort)
	}
	if _, err := c.NullPolicy(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NullPolicy resolves NullPolicyName: "nan" (pass-through), "zero", or
// "fill:<value>".
func (c Config) NullPolicy() (NullPolicy, error) {
	name := strings.ToLower(c.NullPolicyName)
	switch {
	case name == "" || name == "nan":
		return PassThrough(), nil
	case name == "zero":
		return ZeroFill(), nil
	case strings.HasPrefix(name, "fill:"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(name, "fill:"), 64)
		if err != nil {
			return nil, fmt.Errorf("config: bad fill value in null_policy %q: %w", c.NullPolicyName, err)
		}
		return FillNulls(v), nil
	}
	return nil, fmt.Errorf("config: unknown null_policy %q", c.NullPolicyName)
}

// Level returns the parsed log level, defaulting to Info.
func (c Config) Level() slog.Level {
	lvl, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}
