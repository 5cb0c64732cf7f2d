// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Conn is the connection to a remote server. Implementations own the wire
// protocol and authentication.
type Conn interface {
	Connect(ctx context.Context, host string, port int, user, password string) (bool, error)
	Login(ctx context.Context, user, password string, encrypt bool) error
	Close() error
	Run(ctx context.Context, script string) (Value, error)
	Call(ctx context.Context, fn string, args ...Value) (Value, error)
	Upload(ctx context.Context, names []string, values []Value) error
}

// Session runs scripts and function calls over a Conn, converting
// arguments and results with its Codec.
type Session struct {
	conn   Conn
	codec  *Codec
	logger *slog.Logger
	hook   CallHook

	mu   sync.Mutex
	host string
	port int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithCodec shares an existing codec, and with it its null policy.
func WithCodec(c *Codec) Option {
	return func(s *Session) { s.codec = c }
}

// WithCallHook registers a hook around every call.
func WithCallHook(h CallHook) Option {
	return func(s *Session) { s.hook = h }
}

// NewSession creates a session over conn.
func NewSession(conn Conn, opts ...Option) *Session {
	s := &Session{conn: conn}
	for _, o := range opts {
		o(s)
	}
	if s.codec == nil {
		s.codec = NewCodec()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NewSessionFromConfig creates a session with the configured null policy.
func NewSessionFromConfig(conn Conn, cfg Config, opts ...Option) (*Session, error) {
	policy, err := cfg.NullPolicy()
	if err != nil {
		return nil, err
	}
	s := NewSession(conn, opts...)
	s.SetNullPolicy(policy)
	return s, nil
}

// SetCallHook registers a hook that is called around each session call.
func (s *Session) SetCallHook(h CallHook) { s.hook = h }

// SetLogger replaces the session logger.
func (s *Session) SetLogger(l *slog.Logger) { s.logger = l }

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// Codec returns the session's codec.
func (s *Session) Codec() *Codec { return s.codec }

// SetNullPolicy replaces the null policy used for future decodes.
func (s *Session) SetNullPolicy(p NullPolicy) { s.codec.SetNullPolicy(p) }

// NullValueToZero makes decoded numeric nulls surface as zero.
func (s *Session) NullValueToZero() { s.codec.SetNullPolicy(ZeroFill()) }

// NullValueToNaN restores the default pass-through policy.
func (s *Session) NullValueToNaN() { s.codec.SetNullPolicy(PassThrough()) }

func (s *Session) endpoint() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host, s.port
}

// dispatch runs fn between the hook callpoints. Hook panics are recovered
// and logged.
func (s *Session) dispatch(ctx context.Context, op, target string, fn func(context.Context, *CallStatistics) error) error {
	host, port := s.endpoint()
	info := CallInfo{Op: op, Target: target, Host: host, Port: port}
	ctx = withCallInfo(ctx, info)
	stats := &CallStatistics{}

	var token HookToken
	hook := s.hook
	active := false
	if hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.logger.Error("call hook start panic", "op", op, "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, token = hook.OnCallStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			active = true
		}()
	}

	err := fn(ctx, stats)

	if active {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					s.logger.Error("call hook end panic", "op", op, "err", rv)
				}
			}()
			hook.OnCallEnd(ctx, token, info, stats, err)
		}()
	}
	return err
}

// Connect opens the connection and reports whether the server accepted it.
func (s *Session) Connect(ctx context.Context, host string, port int, user, password string) (bool, error) {
	s.mu.Lock()
	s.host, s.port = host, port
	s.mu.Unlock()

	var ok bool
	err := s.dispatch(ctx, OpConnect, host, func(ctx context.Context, _ *CallStatistics) error {
		var err error
		ok, err = s.conn.Connect(ctx, host, port, user, password)
		if err != nil {
			return &ServerError{Op: OpConnect, Err: err}
		}
		return nil
	})
	if err == nil {
		s.logger.Debug("session connected", "host", host, "port", port, "ok", ok)
	}
	return ok, err
}

// ConnectConfig connects using cfg's endpoint and credentials.
func (s *Session) ConnectConfig(ctx context.Context, cfg Config) (bool, error) {
	return s.Connect(ctx, cfg.Host, cfg.Port, cfg.User, cfg.Password)
}

// Login authenticates on an open connection.
func (s *Session) Login(ctx context.Context, user, password string, encrypt bool) error {
	return s.dispatch(ctx, OpLogin, user, func(ctx context.Context, _ *CallStatistics) error {
		if err := s.conn.Login(ctx, user, password, encrypt); err != nil {
			return &ServerError{Op: OpLogin, Err: err}
		}
		return nil
	})
}

// Close closes the connection.
func (s *Session) Close() error {
	if err := s.conn.Close(); err != nil {
		return &ServerError{Op: "close", Err: err}
	}
	return nil
}

// RunValue runs script and returns the undecoded result.
func (s *Session) RunValue(ctx context.Context, script string) (Value, error) {
	var out Value
	err := s.dispatch(ctx, OpRun, script, func(ctx context.Context, stats *CallStatistics) error {
		v, err := s.conn.Run(ctx, script)
		if err != nil {
			return &ServerError{Op: OpRun, Err: err}
		}
		stats.RecordOutput(v, nil)
		out = v
		return nil
	})
	return out, err
}

// Run runs script and decodes the result.
func (s *Session) Run(ctx context.Context, script string) (HostValue, error) {
	var out HostValue
	err := s.dispatch(ctx, OpRun, script, func(ctx context.Context, stats *CallStatistics) error {
		v, err := s.conn.Run(ctx, script)
		if err != nil {
			return &ServerError{Op: OpRun, Err: err}
		}
		hv, err := s.codec.Decode(v)
		if err != nil {
			return err
		}
		stats.RecordOutput(v, hv)
		out = hv
		return nil
	})
	return out, err
}

// Call invokes a server function with encoded arguments and decodes the
// result.
func (s *Session) Call(ctx context.Context, fn string, args ...HostValue) (HostValue, error) {
	var out HostValue
	err := s.dispatch(ctx, OpCall, fn, func(ctx context.Context, stats *CallStatistics) error {
		remote := make([]Value, len(args))
		for i, a := range args {
			v, err := s.codec.Encode(a)
			if err != nil {
				return err
			}
			stats.RecordInput(v)
			remote[i] = v
		}
		v, err := s.conn.Call(ctx, fn, remote...)
		if err != nil {
			return &ServerError{Op: OpCall, Err: err}
		}
		hv, err := s.codec.Decode(v)
		if err != nil {
			return err
		}
		stats.RecordOutput(v, hv)
		out = hv
		return nil
	})
	return out, err
}

// Upload encodes each value of vars and defines it on the server under its
// key. Keys must be Str.
func (s *Session) Upload(ctx context.Context, vars *Dict) error {
	names := make([]string, vars.Len())
	for i, k := range vars.Keys() {
		name, ok := k.(Str)
		if !ok {
			return &ConversionError{Op: "encode", Subject: "upload", Message: "non-string key in upload dictionary is not allowed"}
		}
		names[i] = string(name)
	}
	return s.dispatch(ctx, OpUpload, strings.Join(names, ","), func(ctx context.Context, stats *CallStatistics) error {
		values := make([]Value, len(names))
		for i, hv := range vars.Values() {
			v, err := s.codec.Encode(hv)
			if err != nil {
				return err
			}
			stats.RecordInput(v)
			values[i] = v
		}
		if err := s.conn.Upload(ctx, names, values); err != nil {
			return &ServerError{Op: OpUpload, Err: err}
		}
		return nil
	})
}
