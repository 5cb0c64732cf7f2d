// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedSession(t *testing.T) (*ddbarrow.Session, *MemoryConn) {
	t.Helper()
	conn := NewMemoryConn()
	session := ddbarrow.NewSession(conn)
	ok, err := session.Connect(context.Background(), "localhost", 8848, "admin", "123456")
	require.NoError(t, err)
	require.True(t, ok)
	return session, conn
}

func TestRunCases(t *testing.T) {
	session, _ := connectedSession(t)
	for _, r := range RunCases(context.Background(), session) {
		assert.NoError(t, r.Err, r.Name)
	}
}

func TestCasesUnderZeroFill(t *testing.T) {
	session, _ := connectedSession(t)
	session.NullValueToZero()

	got, err := session.Call(context.Background(), "echo", ddbarrow.Float64Array(1, 2))
	require.NoError(t, err)
	assert.True(t, Equal(ddbarrow.Float64Array(1, 2), got))
}

func TestRunLiterals(t *testing.T) {
	session, _ := connectedSession(t)
	ctx := context.Background()

	v, err := session.Run(ctx, "1 2 3")
	require.NoError(t, err)
	assert.True(t, Equal(ddbarrow.Int32Array(1, 2, 3), v))

	v, err = session.Run(ctx, "2.5")
	require.NoError(t, err)
	assert.Equal(t, ddbarrow.Float(2.5), v)

	v, err = session.Run(ctx, "'abc'")
	require.NoError(t, err)
	assert.Equal(t, ddbarrow.Str("abc"), v)

	_, err = session.Run(ctx, "1 +")
	require.Error(t, err)
	assert.ErrorIs(t, err, ddbarrow.ErrServer)
	assert.Contains(t, err.Error(), "<Server Exception> in run: Syntax Error")
}

func TestScriptHelpers(t *testing.T) {
	session, conn := connectedSession(t)
	ctx := context.Background()

	ref, err := session.UploadTable(ctx, mustTable())
	require.NoError(t, err)
	assert.Regexp(t, `^TMP_TBL_[0-9a-f]{8}$`, ref.Name)

	rows, err := ref.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows)

	tbl, err := ref.ToTable(ctx)
	require.NoError(t, err)
	assert.True(t, Equal(mustTable(), tbl))

	exists, err := session.ExistsDatabase(ctx, "dfs://demo")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, session.Database(ctx, "db", "", "", "dfs://demo"))
	exists, err = session.ExistsDatabase(ctx, "dfs://demo")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, session.SaveTable(ctx, ref, "dfs://demo"))
	exists, err = session.ExistsTable(ctx, "dfs://demo", ref.Name)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := session.LoadTable(ctx, ref.Name, "dfs://demo", nil, false)
	require.NoError(t, err)
	assert.NotEqual(t, ref.Name, loaded.Name)
	rows, err = loaded.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows)

	require.NoError(t, session.DropTable(ctx, "dfs://demo", ref.Name))
	exists, err = session.ExistsTable(ctx, "dfs://demo", ref.Name)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, session.DropDatabase(ctx, "dfs://demo"))
	require.NoError(t, session.Undef(ctx, ref.Name, "VAR"))
	_, ok := conn.Var(ref.Name)
	assert.False(t, ok)

	require.NoError(t, session.UndefAll(ctx))
	_, ok = conn.Var(loaded.Name)
	assert.False(t, ok)
}

func TestQueryBuilder(t *testing.T) {
	session, conn := connectedSession(t)
	ctx := context.Background()

	ref, err := session.UploadTable(ctx, mustTable())
	require.NoError(t, err)

	q := ref.Where("id>=2")
	rows, err := q.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)

	tbl, err := q.Select("sym").ToTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sym"}, tbl.ColumnNames())
	col, _ := tbl.Column("sym")
	assert.Equal(t, []ddbarrow.HostValue{ddbarrow.Str("IBM"), ddbarrow.Str("MSFT")}, col.Objects())

	v, err := ref.Where("sym='AAPL'").Exec(ctx, "id")
	require.NoError(t, err)
	assert.True(t, Equal(ddbarrow.Int32Array(1), v))

	rows, err = ref.Top(1).Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	// null prices never match a comparison
	rows, err = ref.Where("price>0").Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)

	_, err = ref.Where("sym=`IBM").Update().Set("price", "100").Execute(ctx)
	require.NoError(t, err)
	v, err = ref.Where("id=2").Exec(ctx, "price")
	require.NoError(t, err)
	assert.True(t, Equal(ddbarrow.Float64Array(100), v))

	cheap, err := ref.Where("price<200").ExecuteAs(ctx, "cheap")
	require.NoError(t, err)
	rows, err = cheap.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)

	require.NoError(t, ref.Append(ctx, cheap))
	rows, err = ref.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, rows)

	_, err = ref.Delete().Where("id=1").Execute(ctx)
	require.NoError(t, err)
	rows, err = ref.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows)

	require.NoError(t, ref.Drop(ctx, "price"))
	stored, ok := conn.Var(ref.Name)
	require.True(t, ok)
	assert.Equal(t, 2, stored.(*ddbarrow.Table).NumColumns())

	_, err = ref.Where("id>1").GroupBy("sym").ToTable(ctx)
	assert.ErrorIs(t, err, ddbarrow.ErrServer)
}

func TestLoadTableBySQLFromDatabase(t *testing.T) {
	session, _ := connectedSession(t)
	ctx := context.Background()

	require.NoError(t, session.Upload(ctx, mustDict(ddbarrow.Str("quotes"), mustTable())))
	require.NoError(t, session.Database(ctx, "db", "", "", "dfs://it's"))
	require.NoError(t, session.SaveTable(ctx, session.Table("quotes"), "dfs://it's"))

	ref, err := session.LoadTableBySQL(ctx, "quotes", "dfs://it's", "select * from quotes where id<3")
	require.NoError(t, err)
	rows, err := ref.Rows(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows)

	exists, err := session.ExistsTable(ctx, "dfs://it's", "quotes")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInjectedFailures(t *testing.T) {
	session, conn := connectedSession(t)
	ctx := context.Background()

	conn.Fail(ddbarrow.OpLogin, errors.New("The user name or password is incorrect"))
	err := session.Login(ctx, "admin", "bad", true)
	require.Error(t, err)
	assert.Equal(t, "<Server Exception> login: The user name or password is incorrect", err.Error())

	conn.Fail(ddbarrow.OpLogin, nil)
	require.NoError(t, session.Login(ctx, "guest", "pw", false))
	assert.Equal(t, "guest", conn.User())

	conn.Fail(ddbarrow.OpUpload, errors.New("out of memory"))
	vars := ddbarrow.NewDict()
	require.NoError(t, vars.Set(ddbarrow.Str("x"), ddbarrow.Int(1)))
	err = session.Upload(ctx, vars)
	assert.ErrorIs(t, err, ddbarrow.ErrServer)
	_, ok := conn.Var("x")
	assert.False(t, ok)
}

func TestCallAdd(t *testing.T) {
	session, _ := connectedSession(t)
	v, err := session.Call(context.Background(), "add", ddbarrow.Int(2), ddbarrow.Float(0.5))
	require.NoError(t, err)
	assert.Equal(t, ddbarrow.Float(2.5), v)

	_, err = session.Call(context.Background(), "missing")
	assert.ErrorIs(t, err, ddbarrow.ErrServer)
}

func TestPublisherDelivers(t *testing.T) {
	pub := NewPublisher()
	streaming := ddbarrow.NewStreaming(ddbarrow.NewCodec(), pub.TransportFactory())
	require.NoError(t, streaming.Listen(20001))

	var mu sync.Mutex
	var got []ddbarrow.List
	done := make(chan struct{})
	handler := func(msg ddbarrow.List) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg)
		if len(got) == 3 {
			close(done)
		}
	}

	// one message before subscribing is replayed from offset 0
	pub.Publish("trades", ddbarrow.NewString("AAPL"), ddbarrow.NewDouble(1))
	require.NoError(t, streaming.Subscribe("localhost", 8848, handler, "trades", "act", 0, false, nil))
	assert.Equal(t, 1, pub.Subscribers("trades"))

	assert.Equal(t, 1, pub.Publish("trades", ddbarrow.NewString("IBM"), ddbarrow.NewDouble(2)))
	assert.Equal(t, 1, pub.Publish("trades", ddbarrow.NewString("MSFT"), ddbarrow.NullScalar(ddbarrow.TypeDouble)))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for messages")
	}
	streaming.Close()

	require.Len(t, got, 3)
	assert.Equal(t, ddbarrow.List{ddbarrow.Str("AAPL"), ddbarrow.Float(1)}, got[0])
	assert.Equal(t, ddbarrow.List{ddbarrow.Str("MSFT"), ddbarrow.None{}}, got[2])
	assert.Equal(t, 0, pub.Subscribers("trades"))
}

func TestPublisherFilter(t *testing.T) {
	pub := NewPublisher()
	streaming := ddbarrow.NewStreaming(ddbarrow.NewCodec(), pub.TransportFactory())
	require.NoError(t, streaming.Listen(20002))

	received := make(chan ddbarrow.List, 4)
	filter := ddbarrow.List{ddbarrow.Str("IBM")}
	require.NoError(t, streaming.Subscribe("localhost", 8848, func(msg ddbarrow.List) { received <- msg },
		"trades", "ibm_only", -1, false, filter))

	assert.Equal(t, 0, pub.Publish("trades", ddbarrow.NewString("AAPL"), ddbarrow.NewDouble(1)))
	assert.Equal(t, 1, pub.Publish("trades", ddbarrow.NewString("IBM"), ddbarrow.NewDouble(2)))

	streaming.Close()
	close(received)
	var msgs []ddbarrow.List
	for m := range received {
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 1)
	assert.Equal(t, ddbarrow.Str("IBM"), msgs[0][0])
}

func nullableInts(t *testing.T) *ddbarrow.Vector {
	t.Helper()
	v, err := ddbarrow.NewVector(ddbarrow.TypeInt, 0, 3)
	require.NoError(t, err)
	require.NoError(t, v.Append(ddbarrow.NewInt(1)))
	v.AppendNull()
	require.NoError(t, v.Append(ddbarrow.NewInt(3)))
	return v
}

func assertNaNInts(t *testing.T, v ddbarrow.HostValue) {
	t.Helper()
	arr, ok := v.(*ddbarrow.Array)
	require.True(t, ok)
	require.Equal(t, ddbarrow.DTypeFloat64, arr.DType())
	got := arr.Float64s()
	assert.Equal(t, 1.0, got[0])
	assert.True(t, math.IsNaN(got[1]))
	assert.Equal(t, 3.0, got[2])
}

func TestStoredValuesSurviveNullPolicy(t *testing.T) {
	session, conn := connectedSession(t)
	ctx := context.Background()
	conn.Define("v", nullableInts(t))

	session.NullValueToZero()
	got, err := session.Run(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, ddbarrow.DTypeInt32, got.(*ddbarrow.Array).DType())
	assert.Equal(t, ddbarrow.Int(0), got.(*ddbarrow.Array).At(1))

	session.NullValueToNaN()
	got, err = session.Run(ctx, "v")
	require.NoError(t, err)
	assertNaNInts(t, got)

	stored, _ := conn.Var("v")
	assert.True(t, stored.(*ddbarrow.Vector).IsNullAt(1))
}

func TestSubscribersDecodeIndependently(t *testing.T) {
	pub := NewPublisher()
	zero := ddbarrow.NewCodec()
	zero.SetNullPolicy(ddbarrow.ZeroFill())
	filled := ddbarrow.NewStreaming(zero, pub.TransportFactory())
	require.NoError(t, filled.Listen(20003))
	plain := ddbarrow.NewStreaming(ddbarrow.NewCodec(), pub.TransportFactory())
	require.NoError(t, plain.Listen(20004))

	zeroCh := make(chan ddbarrow.List, 1)
	nanCh := make(chan ddbarrow.List, 1)
	require.NoError(t, filled.Subscribe("localhost", 8848, func(msg ddbarrow.List) { zeroCh <- msg },
		"ticks", "zero", -1, false, nil))
	require.NoError(t, plain.Subscribe("localhost", 8848, func(msg ddbarrow.List) { nanCh <- msg },
		"ticks", "nan", -1, false, nil))

	assert.Equal(t, 2, pub.Publish("ticks", nullableInts(t)))

	receive := func(ch chan ddbarrow.List) ddbarrow.List {
		select {
		case msg := <-ch:
			return msg
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for message")
			return nil
		}
	}
	zeroMsg := receive(zeroCh)
	nanMsg := receive(nanCh)

	arr := zeroMsg[0].(*ddbarrow.Array)
	assert.Equal(t, ddbarrow.DTypeInt32, arr.DType())
	assert.Equal(t, ddbarrow.Int(0), arr.At(1))
	assertNaNInts(t, nanMsg[0])

	// the log keeps the original nulls for late subscribers
	replayCh := make(chan ddbarrow.List, 1)
	require.NoError(t, plain.Subscribe("localhost", 8848, func(msg ddbarrow.List) { replayCh <- msg },
		"ticks", "replay", 0, false, nil))
	assertNaNInts(t, receive(replayCh)[0])

	filled.Close()
	plain.Close()
}

func TestTransportFactoryRejectsPort(t *testing.T) {
	streaming := ddbarrow.NewStreaming(ddbarrow.NewCodec(), NewPublisher().TransportFactory())
	assert.Error(t, streaming.Listen(0))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(ddbarrow.Float64Array(1, nan()), ddbarrow.Float64Array(1, nan())))
	assert.False(t, Equal(ddbarrow.Int64Array(1, 2), ddbarrow.Int32Array(1, 2)))
	assert.False(t, Equal(ddbarrow.Int(1), ddbarrow.Float(1)))
	assert.True(t, Equal(mustSet(ddbarrow.Int(1), ddbarrow.Int(2)), mustSet(ddbarrow.Int(2), ddbarrow.Int(1))))
	assert.False(t, Equal(ddbarrow.List{ddbarrow.Int(1)}, ddbarrow.List{}))
}

func nan() float64 {
	var zero float64
	return zero / zero
}
