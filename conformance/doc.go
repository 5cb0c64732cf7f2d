// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides in-memory fixtures for exercising a
// [ddbarrow.Session] and [ddbarrow.Streaming] without a server.
//
// [MemoryConn] implements [ddbarrow.Conn]: uploaded variables are kept in
// memory and a small set of scripts is understood. [Publisher] is an
// in-memory pub/sub whose [Publisher.TransportFactory] plugs into
// [ddbarrow.NewStreaming]. [Cases] lists host values with the remote form
// and type they must encode to, and [RunCases] round-trips each of them
// through a session.
package conformance
