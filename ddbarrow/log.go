// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"log/slog"
	"strings"
)

// Log level names accepted in configuration.
const (
	LogDebug = "DEBUG"
	LogInfo  = "INFO"
	LogWarn  = "WARN"
	LogError = "ERROR"
)

// ParseLogLevel maps a level name to a slog.Level. An empty name is INFO.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case LogDebug:
		return slog.LevelDebug, nil
	case LogInfo, "":
		return slog.LevelInfo, nil
	case LogWarn, "WARNING":
		return slog.LevelWarn, nil
	case LogError:
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log_level %q", name)
}
