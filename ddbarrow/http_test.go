// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*httptest.Server, *recordingConn, *Streaming) {
	t.Helper()
	conn := newRecordingConn()
	conn.results["v"] = intVector(t, NewInt(1), NullScalar(TypeInt), NewInt(3))
	conn.results["d"] = sampleDict(t)

	streaming, _ := listening(t)
	t.Cleanup(streaming.Close)
	srv := httptest.NewServer(NewGateway(NewSession(conn), streaming, "/api/"))
	t.Cleanup(srv.Close)
	return srv, conn, streaming
}

func sampleDict(t *testing.T) *Dictionary {
	t.Helper()
	keys, err := NewVector(TypeString, 0, 1)
	require.NoError(t, err)
	require.NoError(t, keys.Append(NewString("a")))
	d, err := NewDictionary(keys, intVector(t, NewInt(1)))
	require.NoError(t, err)
	return d
}

func post(t *testing.T, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) httpError {
	t.Helper()
	var e httpError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

func TestGatewayRun(t *testing.T) {
	srv, conn, _ := newTestGateway(t)

	resp := post(t, srv.URL+"/api/run", " v \n", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ContentTypeArrowStream, resp.Header.Get("Content-Type"))

	tbl, err := ReadTableIPC(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"result"}, tbl.ColumnNames())
	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, []string{"v"}, conn.ran())
}

func TestGatewayRunZstd(t *testing.T) {
	srv, _, _ := newTestGateway(t)

	resp := post(t, srv.URL+"/api/run", "v", map[string]string{"Accept-Encoding": "gzip, zstd;q=0.9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "zstd", resp.Header.Get("Content-Encoding"))

	dec, err := zstd.NewReader(resp.Body)
	require.NoError(t, err)
	defer dec.Close()
	tbl, err := ReadTableIPC(dec)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NumRows())
}

func TestGatewayDescribe(t *testing.T) {
	srv, _, _ := newTestGateway(t)

	resp := post(t, srv.URL+"/api/describe", "v", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var d Description
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.Equal(t, "VECTOR", d.Form)
	assert.Equal(t, "INT", d.Type)
	assert.Equal(t, 3, d.Rows)
}

func TestGatewayTopics(t *testing.T) {
	srv, _, streaming := newTestGateway(t)
	require.NoError(t, streaming.Subscribe("localhost", 8848, func(List) {}, "trades", "gw", -1, false, nil))

	resp, err := http.Get(srv.URL + "/api/topics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var topics []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&topics))
	assert.Equal(t, []string{"localhost/8848/trades/gw"}, topics)
}

func TestGatewayTopicsWithoutStreaming(t *testing.T) {
	srv := httptest.NewServer(NewGateway(NewSession(newRecordingConn()), nil, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ddb/topics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestGatewayErrors(t *testing.T) {
	srv, conn, _ := newTestGateway(t)

	resp := post(t, srv.URL+"/api/run", "   ", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty script", decodeError(t, resp).Message)

	// a dictionary cannot be presented as a table
	resp = post(t, srv.URL+"/api/run", "d", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/api/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	conn.err = errors.New("Syntax Error")
	resp = post(t, srv.URL+"/api/describe", "1 +", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "ServerError", e.Type)
	assert.Equal(t, "<Server Exception> in run: Syntax Error", e.Message)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(encodeErr("x", "bad")))
	assert.Equal(t, http.StatusBadGateway, statusFor(&ServerError{Op: OpRun, Err: errors.New("x")}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
	assert.Equal(t, "StreamingError", errorType(&StreamingError{Op: "listen", Err: ErrStreamingEnabled}))
}
