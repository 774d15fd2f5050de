package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	if v, err := r.Unwrap(); v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}
	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
	if e.UnwrapOr(9) != 9 {
		t.Fatal("UnwrapOr should return fallback")
	}
}

func TestFromPair(t *testing.T) {
	if !FromPair(1, nil).IsOk() {
		t.Error("nil error should be ok")
	}
	if !FromPair(0, errors.New("x")).IsErr() {
		t.Error("error should be err")
	}
}

func TestCollect(t *testing.T) {
	all := Collect([]Result[int]{Ok(1), Ok(2)})
	if v, _ := all.Unwrap(); len(v) != 2 || v[1] != 2 {
		t.Errorf("got %v", v)
	}
	boom := errors.New("boom")
	_, err := Collect([]Result[int]{Ok(1), Err[int](boom), Err[int](errors.New("later"))}).Unwrap()
	if err != boom {
		t.Errorf("expected first error, got %v", err)
	}
}

func TestThen_ShortCircuits(t *testing.T) {
	called := false
	fail := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("stop")) })
	next := Stage[int, string](func(context.Context, int) Result[string] { called = true; return Ok("") })
	if r := Then(fail, next)(context.Background(), 1); r.IsOk() {
		t.Error("expected error")
	}
	if called {
		t.Error("second stage must not run")
	}
}

func TestThen_Composes(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	str := MapStage(strconv.Itoa)
	var tapped int
	tap := TapStage(func(_ context.Context, n int) { tapped = n })
	s := TracedStage("test", Then(Then(double, tap), str))
	v, err := s(context.Background(), 21).Unwrap()
	if err != nil || v != "42" || tapped != 42 {
		t.Errorf("got %q %v tapped=%d", v, err, tapped)
	}
}

func TestRetry_SucceedsEventually(t *testing.T) {
	var calls int32
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		if atomic.AddInt32(&calls, 1) < 3 {
			return Err[int](errors.New("transient"))
		}
		return Ok(7)
	})
	if v, err := r.Unwrap(); err != nil || v != 7 || calls != 3 {
		t.Errorf("v=%d err=%v calls=%d", v, err, calls)
	}
}

func TestRetry_NotRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	opts := RetryOpts{
		MaxAttempts: 5, InitialWait: time.Millisecond, MaxWait: time.Millisecond,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if r.IsOk() || calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: time.Hour}
	_, err := Retry(ctx, opts, func(context.Context) Result[int] { return Err[int](errors.New("x")) }).Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryStage(t *testing.T) {
	calls := 0
	s := RetryStage(RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
		Stage[int, int](func(_ context.Context, n int) Result[int] {
			calls++
			return Err[int](errors.New("always"))
		}))
	if s(context.Background(), 1).IsOk() || calls != 2 {
		t.Errorf("calls = %d", calls)
	}
}

func TestParMapResult_PreservesOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	var inflight, peak int32
	out := ParMapResult(items, 2, func(n int) Result[int] {
		cur := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(time.Duration(n) * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return Ok(n * 10)
	})
	for i, r := range out {
		if v, _ := r.Unwrap(); v != items[i]*10 {
			t.Errorf("out[%d] = %d", i, v)
		}
	}
	if peak > 2 {
		t.Errorf("peak concurrency %d > 2", peak)
	}
	if len(ParMapResult[int, int](nil, 4, nil)) != 0 {
		t.Error("empty input should give empty output")
	}
}

func TestSliceHelpers(t *testing.T) {
	if got := Map([]int{1, 2}, strconv.Itoa); got[0] != "1" || got[1] != "2" {
		t.Errorf("Map = %v", got)
	}
	if got := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 }); len(got) != 2 {
		t.Errorf("Filter = %v", got)
	}
	got := UniqueBy([]string{"a1", "b1", "a2"}, func(s string) byte { return s[0] })
	if len(got) != 2 || got[0] != "a1" || got[1] != "b1" {
		t.Errorf("UniqueBy = %v", got)
	}
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Errorf("Chunk = %v", chunks)
	}
	if len(Chunk([]int{}, 2)) != 0 {
		t.Error("Chunk of empty should be empty")
	}
}
