// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package ddbarrow is the client core for a remote columnar analytical
// database. It converts between the server's typed value model and host
// values backed by Apache Arrow, and manages streaming subscriptions.
//
// # Values
//
// Remote values ([Value]) are scalars, vectors, pairs, matrices, sets,
// dictionaries and tables. Each element type reserves a null sentinel:
// the minimum integer of its width for BOOL, CHAR, SHORT, INT, LONG and
// every temporal type, -MaxFloat32 and -MaxFloat64 for FLOAT and DOUBLE,
// and the empty string for STRING and SYMBOL.
//
// Host values ([HostValue]) form a closed set: [None], [Bool], [Int],
// [Float], [Str], [Bytes], [List], [Tuple], [DateTime], [*Array],
// [*HostTable], [*HostSet] and [*Dict]. Typed arrays keep their elements in
// an Arrow array, so a decoded vector is a single buffer copy.
//
// # Codec
//
// [Codec.Decode] and [Codec.Encode] convert in each direction. Decoding a
// vector first runs the codec's [NullPolicy]:
//
//   - [PassThrough] (default) leaves nulls alone. Integral vectors with
//     nulls are widened to float64 with NaN at the null positions.
//   - [ZeroFill] and [FillNulls] overwrite nulls in numeric vectors.
//
// Temporal values decode to [DateTime] counts of a [TimeUnit]; there is one
// unit per remote temporal type. Matrices decode to a [Tuple] of the
// row-major grid and its row and column labels.
//
// # Sessions
//
// A [Session] wraps a [Conn], the transport collaborator, and converts
// arguments and results. Failures reported by the Conn are wrapped in
// [*ServerError]; conversion failures are [*ConversionError].
//
// # Streaming
//
// [Streaming] is the subscription registry. Topics are keyed by
// host/port/table/action. Messages are decoded field by field and handed to
// the user [Handler] one at a time. [Streaming.Close] unsubscribes every
// topic and waits for all workers.
//
// # HTTP gateway
//
// [Gateway] serves a Session over HTTP (default prefix /ddb):
//
//	POST /ddb/run       script in, Arrow IPC stream out
//	POST /ddb/describe  script in, JSON description out
//	GET  /ddb/topics    live subscription topics
//
// Responses are zstd-compressed when the client sends
// Accept-Encoding: zstd.
package ddbarrow
