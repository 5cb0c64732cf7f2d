// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

// Well-known keys used as Arrow schema and field metadata on exported
// tables.
const (
	MetaDType   = "ddbarrow.dtype"
	MetaVersion = "ddbarrow.version"

	FormatVersion = "1"
)
