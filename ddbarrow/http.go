// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultGatewayPrefix = "/ddb"
	maxScriptBytes       = 1 << 20
)

// Gateway exposes a Session (and optionally a Streaming registry) over
// HTTP:
//
//	POST {prefix}/run       script in body, result as an Arrow IPC stream
//	POST {prefix}/describe  script in body, JSON Description of the result
//	GET  {prefix}/topics    JSON list of live subscription topics
type Gateway struct {
	session   *Session
	streaming *Streaming
	prefix    string
	mux       *http.ServeMux
	encoder   *zstd.Encoder
}

// NewGateway creates a gateway. An empty prefix means "/ddb"; streaming
// may be nil.
func NewGateway(session *Session, streaming *Streaming, prefix string) *Gateway {
	if prefix == "" {
		prefix = defaultGatewayPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("ddbarrow: creating zstd encoder: %v", err))
	}
	g := &Gateway{
		session:   session,
		streaming: streaming,
		prefix:    prefix,
		encoder:   enc,
	}
	g.mux = http.NewServeMux()
	g.mux.HandleFunc(fmt.Sprintf("POST %s/run", g.prefix), g.handleRun)
	g.mux.HandleFunc(fmt.Sprintf("POST %s/describe", g.prefix), g.handleDescribe)
	g.mux.HandleFunc(fmt.Sprintf("GET %s/topics", g.prefix), g.handleTopics)
	return g
}

// Prefix returns the route prefix.
func (g *Gateway) Prefix() string { return g.prefix }

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

func readScript(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScriptBytes+1))
	if err != nil {
		return "", err
	}
	if len(body) > maxScriptBytes {
		return "", fmt.Errorf("script exceeds %d bytes", maxScriptBytes)
	}
	script := strings.TrimSpace(string(body))
	if script == "" {
		return "", errors.New("empty script")
	}
	return script, nil
}

func (g *Gateway) handleRun(w http.ResponseWriter, r *http.Request) {
	script, err := readScript(r)
	if err != nil {
		g.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}
	result, err := g.session.Run(r.Context(), script)
	if err != nil {
		g.writeHttpError(w, r, statusFor(err), err)
		return
	}
	table, err := AsTable(result)
	if err != nil {
		g.writeHttpError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	var buf bytes.Buffer
	if err := WriteTableIPC(&buf, table); err != nil {
		g.writeHttpError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	g.write(w, r, http.StatusOK, ContentTypeArrowStream, buf.Bytes())
}

func (g *Gateway) handleDescribe(w http.ResponseWriter, r *http.Request) {
	script, err := readScript(r)
	if err != nil {
		g.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}
	v, err := g.session.RunValue(r.Context(), script)
	if err != nil {
		g.writeHttpError(w, r, statusFor(err), err)
		return
	}
	g.writeJSON(w, r, http.StatusOK, Describe(v))
}

func (g *Gateway) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics := []string{}
	if g.streaming != nil {
		topics = g.streaming.Topics()
	}
	g.writeJSON(w, r, http.StatusOK, topics)
}

// statusFor maps conversion errors to 422 and server errors to 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrServer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type httpError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorType(err error) string {
	var conv *ConversionError
	var srv *ServerError
	var st *StreamingError
	switch {
	case errors.As(err, &conv):
		return "ConversionError"
	case errors.As(err, &srv):
		return "ServerError"
	case errors.As(err, &st):
		return "StreamingError"
	default:
		return "Error"
	}
}

// --- Helpers ---

func (g *Gateway) writeHttpError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	g.session.Logger().Debug("gateway request failed", "path", r.URL.Path, "status", statusCode, "err", err)
	g.writeJSON(w, r, statusCode, httpError{Type: errorType(err), Message: err.Error()})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	g.write(w, r, statusCode, "application/json", data)
}

// write sends data, zstd-compressed when the client accepts it.
func (g *Gateway) write(w http.ResponseWriter, r *http.Request, statusCode int, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	if acceptsZstd(r) {
		data = g.encoder.EncodeAll(data, nil)
		w.Header().Set("Content-Encoding", "zstd")
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

func acceptsZstd(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(name, "zstd") {
			return true
		}
	}
	return false
}
