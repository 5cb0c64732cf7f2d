// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MessageHandler receives the raw fields of one pushed message.
type MessageHandler func(fields []Value)

// Handler receives one decoded message.
type Handler func(msg List)

// Worker is the background activity delivering one subscription's messages.
// Join blocks until it has exited.
type Worker interface {
	Join()
}

// StreamTransport subscribes to remote tables and pushes their messages to
// a handler from a background worker.
type StreamTransport interface {
	Subscribe(host string, port int, handler MessageHandler, table, action string,
		offset int64, resubscribe bool, filter *Vector) (Worker, error)
	Unsubscribe(host string, port int, table, action string) error
}

// TransportFactory creates the transport listening on a local port.
type TransportFactory func(port int) (StreamTransport, error)

// Topic returns the registry key of a subscription.
func Topic(host string, port int, table, action string) string {
	return host + "/" + strconv.Itoa(port) + "/" + table + "/" + action
}

type subscription struct {
	host   string
	port   int
	table  string
	action string
	worker Worker
}

// Streaming is the registry of live subscriptions. Control operations are
// serialized by mu; handler invocations are serialized by deliverMu.
type Streaming struct {
	codec   *Codec
	factory TransportFactory
	logger  *slog.Logger

	mu        sync.Mutex
	transport StreamTransport
	port      int
	listening bool
	closed    bool
	subs      map[string]*subscription

	deliverMu sync.Mutex
}

// NewStreaming creates a registry that decodes messages with codec and
// creates its transport with factory on Listen.
func NewStreaming(codec *Codec, factory TransportFactory) *Streaming {
	return &Streaming{
		codec:   codec,
		factory: factory,
		logger:  slog.Default(),
		subs:    make(map[string]*subscription),
	}
}

// SetLogger replaces the registry logger.
func (s *Streaming) SetLogger(l *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// Listen starts the transport on port. It may be called once.
func (s *Streaming) Listen(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return &StreamingError{Op: "listen", Port: s.port, Err: ErrStreamingEnabled}
	}
	if s.closed {
		return &StreamingError{Op: "listen", Port: port, Err: ErrStreamingNotEnabled}
	}
	t, err := s.factory(port)
	if err != nil {
		return &StreamingError{Op: "listen", Port: port, Err: err}
	}
	s.transport = t
	s.port = port
	s.listening = true
	s.logger.Debug("streaming enabled", "port", port)
	return nil
}

// Port returns the listening port, or 0 before Listen.
func (s *Streaming) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Subscribe starts delivering table's messages to handler. filter, when
// not nil, must encode to a vector.
func (s *Streaming) Subscribe(host string, port int, handler Handler, table, action string,
	offset int64, resubscribe bool, filter HostValue) error {
	topic := Topic(host, port, table, action)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening || s.closed {
		return &StreamingError{Op: "subscribe", Topic: topic, Err: ErrStreamingNotEnabled}
	}
	if _, ok := s.subs[topic]; ok {
		return &StreamingError{Op: "subscribe", Topic: topic, Err: ErrSubscriptionExists}
	}

	var filterVec *Vector
	if filter != nil {
		fv, err := s.codec.Encode(filter)
		if err != nil {
			return err
		}
		vec, ok := fv.(*Vector)
		if !ok || vec.Form() != FormVector {
			return &ConversionError{Op: "encode", Subject: "filter", Message: fmt.Sprintf("filter must be a vector, got %s", fv.Form())}
		}
		filterVec = vec
	}

	worker, err := s.transport.Subscribe(host, port, s.deliver(topic, handler), table, action, offset, resubscribe, filterVec)
	if err != nil {
		return &StreamingError{Op: "subscribe", Topic: topic, Err: err}
	}
	s.subs[topic] = &subscription{host: host, port: port, table: table, action: action, worker: worker}
	s.logger.Debug("subscribed", "topic", topic, "offset", offset)
	return nil
}

// deliver wraps handler: each message is decoded field by field and handed
// over while holding deliverMu. Decode failures and handler panics are
// logged and the message is dropped.
func (s *Streaming) deliver(topic string, handler Handler) MessageHandler {
	return func(fields []Value) {
		msg, err := s.codec.DecodeFields(fields)
		if err != nil {
			s.logger.Error("streaming message decode failed", "topic", topic, "err", err)
			return
		}
		s.deliverMu.Lock()
		defer s.deliverMu.Unlock()
		defer func() {
			if rv := recover(); rv != nil {
				s.logger.Error("streaming handler panic", "topic", topic, "err", rv)
			}
		}()
		handler(msg)
	}
}

// Unsubscribe stops the remote side pushing and removes the topic. The
// worker is left to drain and exit on its own.
func (s *Streaming) Unsubscribe(host string, port int, table, action string) error {
	topic := Topic(host, port, table, action)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening || s.closed {
		return &StreamingError{Op: "unsubscribe", Topic: topic, Err: ErrStreamingNotEnabled}
	}
	if _, ok := s.subs[topic]; !ok {
		return &StreamingError{Op: "unsubscribe", Topic: topic, Err: ErrSubscriptionNotExists}
	}
	if err := s.transport.Unsubscribe(host, port, table, action); err != nil {
		return &StreamingError{Op: "unsubscribe", Topic: topic, Err: err}
	}
	delete(s.subs, topic)
	s.logger.Debug("unsubscribed", "topic", topic)
	return nil
}

// Topics returns the live topic keys in sorted order.
func (s *Streaming) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.subs))
	for t := range s.subs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Close unsubscribes every remaining topic, logging failures, then waits
// for all workers to exit. It is safe to call more than once.
func (s *Streaming) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	topics := make([]string, 0, len(s.subs))
	for t := range s.subs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	workers := make([]Worker, 0, len(topics))
	for _, t := range topics {
		sub := s.subs[t]
		if sub.worker != nil {
			workers = append(workers, sub.worker)
		}
		if err := s.transport.Unsubscribe(sub.host, sub.port, sub.table, sub.action); err != nil {
			s.logger.Error("streaming teardown unsubscribe failed", "topic", t, "err", err)
		}
		delete(s.subs, t)
	}
	logger := s.logger
	s.mu.Unlock()

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			w.Join()
			return nil
		})
	}
	_ = g.Wait()
	logger.Debug("streaming closed", "topics", len(topics))
}
