// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	done   chan struct{}
	once   sync.Once
	joined atomic.Bool
}

func (w *fakeWorker) stop() { w.once.Do(func() { close(w.done) }) }

func (w *fakeWorker) Join() {
	<-w.done
	w.joined.Store(true)
}

type fakeSub struct {
	handler MessageHandler
	filter  *Vector
	offset  int64
	worker  *fakeWorker
}

type fakeTransport struct {
	mu             sync.Mutex
	subs           map[string]*fakeSub
	subscribeErr   error
	unsubscribeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]*fakeSub)}
}

func (f *fakeTransport) factory(port int) (StreamTransport, error) {
	if port <= 0 {
		return nil, errors.New("bad port")
	}
	return f, nil
}

func (f *fakeTransport) Subscribe(host string, port int, handler MessageHandler, table, action string,
	offset int64, resubscribe bool, filter *Vector) (Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	w := &fakeWorker{done: make(chan struct{})}
	f.subs[Topic(host, port, table, action)] = &fakeSub{handler: handler, filter: filter, offset: offset, worker: w}
	return w, nil
}

func (f *fakeTransport) Unsubscribe(host string, port int, table, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[Topic(host, port, table, action)]; ok {
		sub.worker.stop()
	}
	return f.unsubscribeErr
}

func (f *fakeTransport) sub(topic string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[topic]
}

func listening(t *testing.T) (*Streaming, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s := NewStreaming(NewCodec(), ft.factory)
	require.NoError(t, s.Listen(20000))
	return s, ft
}

func TestStreamingRequiresListen(t *testing.T) {
	s := NewStreaming(NewCodec(), newFakeTransport().factory)
	err := s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", -1, false, nil)
	assert.ErrorIs(t, err, ErrStreamingNotEnabled)
	err = s.Unsubscribe("localhost", 8848, "trades", "a")
	assert.ErrorIs(t, err, ErrStreamingNotEnabled)
	assert.Equal(t, 0, s.Port())
}

func TestStreamingListenTwice(t *testing.T) {
	s, _ := listening(t)
	assert.Equal(t, 20000, s.Port())
	err := s.Listen(20001)
	assert.ErrorIs(t, err, ErrStreamingEnabled)
	assert.EqualError(t, err, "<API Exception> listen: streaming is already enabled on port 20000")
}

func TestStreamingListenFactoryError(t *testing.T) {
	s := NewStreaming(NewCodec(), newFakeTransport().factory)
	err := s.Listen(0)
	require.Error(t, err)
	var serr *StreamingError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "listen", serr.Op)
}

func TestStreamingSubscribeLifecycle(t *testing.T) {
	s, ft := listening(t)
	defer s.Close()

	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", 5, false, nil))
	topic := Topic("localhost", 8848, "trades", "a")
	assert.Equal(t, "localhost/8848/trades/a", topic)
	assert.Equal(t, []string{topic}, s.Topics())
	assert.EqualValues(t, 5, ft.sub(topic).offset)

	err := s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", 0, false, nil)
	assert.ErrorIs(t, err, ErrSubscriptionExists)
	assert.Contains(t, err.Error(), "subscription localhost/8848/trades/a already exists")

	require.NoError(t, s.Unsubscribe("localhost", 8848, "trades", "a"))
	assert.Empty(t, s.Topics())

	err = s.Unsubscribe("localhost", 8848, "trades", "a")
	assert.ErrorIs(t, err, ErrSubscriptionNotExists)

	// the same topic may be subscribed again once removed
	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", -1, false, nil))
}

func TestStreamingTransportErrors(t *testing.T) {
	s, ft := listening(t)
	ft.subscribeErr = errors.New("connection refused")
	err := s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", -1, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, s.Topics())

	ft.subscribeErr = nil
	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", -1, false, nil))
	ft.unsubscribeErr = errors.New("server gone")
	err = s.Unsubscribe("localhost", 8848, "trades", "a")
	require.Error(t, err)
	assert.Equal(t, []string{Topic("localhost", 8848, "trades", "a")}, s.Topics())

	// teardown logs the failure and still drops the topic
	s.Close()
	assert.Empty(t, s.Topics())
}

func TestStreamingDeliversDecodedMessages(t *testing.T) {
	s, ft := listening(t)
	defer s.Close()

	var got []List
	require.NoError(t, s.Subscribe("localhost", 8848, func(msg List) { got = append(got, msg) }, "trades", "a", -1, false, nil))
	sub := ft.sub(Topic("localhost", 8848, "trades", "a"))

	sub.handler([]Value{NewInt(7), NewSymbol("IBM"), NullScalar(TypeDouble)})
	require.Len(t, got, 1)
	assert.Equal(t, List{Int(7), Str("IBM"), None{}}, got[0])
}

func TestStreamingHandlerPanicIsRecovered(t *testing.T) {
	s, ft := listening(t)
	defer s.Close()

	calls := 0
	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {
		calls++
		panic("boom")
	}, "trades", "a", -1, false, nil))
	sub := ft.sub(Topic("localhost", 8848, "trades", "a"))

	assert.NotPanics(t, func() {
		sub.handler([]Value{NewInt(1)})
		sub.handler([]Value{NewInt(2)})
	})
	assert.Equal(t, 2, calls)
}

func TestStreamingHandlersAreSerialized(t *testing.T) {
	s, ft := listening(t)
	defer s.Close()

	var active, overlaps atomic.Int32
	handler := func(List) {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		active.Add(-1)
	}
	require.NoError(t, s.Subscribe("localhost", 8848, handler, "a", "x", -1, false, nil))
	require.NoError(t, s.Subscribe("localhost", 8848, handler, "b", "x", -1, false, nil))
	subA := ft.sub(Topic("localhost", 8848, "a", "x"))
	subB := ft.sub(Topic("localhost", 8848, "b", "x"))

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				subA.handler([]Value{NewInt(int32(i))})
			} else {
				subB.handler([]Value{NewInt(int32(i))})
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestStreamingFilter(t *testing.T) {
	s, ft := listening(t)
	defer s.Close()

	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {}, "trades", "a", -1, false, List{Str("IBM"), Str("MSFT")}))
	filter := ft.sub(Topic("localhost", 8848, "trades", "a")).filter
	require.NotNil(t, filter)
	assert.Equal(t, TypeString, filter.Type())
	assert.Equal(t, 2, filter.Len())

	err := s.Subscribe("localhost", 8848, func(List) {}, "trades", "b", -1, false, Str("IBM"))
	assert.ErrorIs(t, err, ErrConversion)
	assert.Len(t, s.Topics(), 1)
}

func TestStreamingCloseJoinsWorkers(t *testing.T) {
	s, ft := listening(t)
	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {}, "a", "x", -1, false, nil))
	require.NoError(t, s.Subscribe("localhost", 8848, func(List) {}, "b", "x", -1, false, nil))
	wa := ft.sub(Topic("localhost", 8848, "a", "x")).worker
	wb := ft.sub(Topic("localhost", 8848, "b", "x")).worker

	s.Close()
	assert.True(t, wa.joined.Load())
	assert.True(t, wb.joined.Load())
	assert.Empty(t, s.Topics())

	// idempotent, and the registry refuses further work
	s.Close()
	err := s.Subscribe("localhost", 8848, func(List) {}, "a", "x", -1, false, nil)
	assert.ErrorIs(t, err, ErrStreamingNotEnabled)
	assert.ErrorIs(t, s.Listen(20001), ErrStreamingEnabled)
}

func TestStreamingCloseWithoutListen(t *testing.T) {
	s := NewStreaming(NewCodec(), newFakeTransport().factory)
	s.Close()
	assert.ErrorIs(t, s.Listen(20000), ErrStreamingNotEnabled)
}
