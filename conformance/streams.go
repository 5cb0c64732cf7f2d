// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"fmt"
	"sync"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
)

// Publisher is an in-memory stream table. Published messages are kept in a
// per-table log and pushed to every live subscriber of that table.
type Publisher struct {
	mu      sync.Mutex
	history map[string][][]ddbarrow.Value
	subs    map[string]*memWorker
}

// NewPublisher returns an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		history: make(map[string][][]ddbarrow.Value),
		subs:    make(map[string]*memWorker),
	}
}

// Publish appends one message to table and returns the number of
// subscribers it was queued for.
func (p *Publisher) Publish(table string, fields ...ddbarrow.Value) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[table] = append(p.history[table], cloneFields(fields))
	n := 0
	for _, w := range p.subs {
		if w.table == table && w.push(cloneFields(fields)) {
			n++
		}
	}
	return n
}

// cloneFields gives each subscriber its own message, since a handler's null
// policy rewrites vectors in place.
func cloneFields(fields []ddbarrow.Value) []ddbarrow.Value {
	out := make([]ddbarrow.Value, len(fields))
	for i, f := range fields {
		out[i] = ddbarrow.CloneValue(f)
	}
	return out
}

// Subscribers returns the number of live subscriptions on table.
func (p *Publisher) Subscribers(table string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.subs {
		if w.table == table {
			n++
		}
	}
	return n
}

// TransportFactory returns a factory for ddbarrow.NewStreaming whose
// transports subscribe to this publisher.
func (p *Publisher) TransportFactory() ddbarrow.TransportFactory {
	return func(port int) (ddbarrow.StreamTransport, error) {
		if port <= 0 {
			return nil, fmt.Errorf("invalid listening port %d", port)
		}
		return &memTransport{pub: p, port: port}, nil
	}
}

type memTransport struct {
	pub  *Publisher
	port int
}

func (t *memTransport) Subscribe(host string, port int, handler ddbarrow.MessageHandler, table, action string,
	offset int64, _ bool, filter *ddbarrow.Vector) (ddbarrow.Worker, error) {
	topic := ddbarrow.Topic(host, port, table, action)

	t.pub.mu.Lock()
	defer t.pub.mu.Unlock()
	if _, ok := t.pub.subs[topic]; ok {
		return nil, fmt.Errorf("topic %s is already subscribed", topic)
	}
	w := newMemWorker(table, filter)
	if offset >= 0 {
		log := t.pub.history[table]
		if offset > int64(len(log)) {
			offset = int64(len(log))
		}
		for _, msg := range log[offset:] {
			w.push(cloneFields(msg))
		}
	}
	t.pub.subs[topic] = w
	go w.run(handler)
	return w, nil
}

func (t *memTransport) Unsubscribe(host string, port int, table, action string) error {
	topic := ddbarrow.Topic(host, port, table, action)

	t.pub.mu.Lock()
	defer t.pub.mu.Unlock()
	w, ok := t.pub.subs[topic]
	if !ok {
		return fmt.Errorf("topic %s is not subscribed", topic)
	}
	delete(t.pub.subs, topic)
	w.stop()
	return nil
}

// memWorker delivers queued messages from its own goroutine. After stop it
// drains the queue and exits.
type memWorker struct {
	table  string
	filter map[string]struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]ddbarrow.Value
	stopped bool
	done    chan struct{}
}

func newMemWorker(table string, filter *ddbarrow.Vector) *memWorker {
	w := &memWorker{table: table, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	if filter != nil {
		w.filter = make(map[string]struct{}, filter.Len())
		for i := range filter.Len() {
			w.filter[filterKey(filter.Get(i))] = struct{}{}
		}
	}
	return w
}

// filterKey renders the value a message is filtered on.
func filterKey(v ddbarrow.Value) string {
	if s, ok := v.(*ddbarrow.Scalar); ok {
		return s.String()
	}
	return ""
}

// push queues fields unless the worker is stopped or the message's first
// field is not in the filter.
func (w *memWorker) push(fields []ddbarrow.Value) bool {
	if w.filter != nil {
		if len(fields) == 0 {
			return false
		}
		if _, ok := w.filter[filterKey(fields[0])]; !ok {
			return false
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.queue = append(w.queue, fields)
	w.cond.Signal()
	return true
}

func (w *memWorker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.cond.Broadcast()
}

func (w *memWorker) run(handler ddbarrow.MessageHandler) {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		msg := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		handler(msg)
	}
}

// Join blocks until the worker goroutine has exited.
func (w *memWorker) Join() { <-w.done }
