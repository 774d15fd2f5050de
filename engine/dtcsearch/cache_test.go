package dtcsearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/obdpulse/obdpulse/engine/analyzer"
)

type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

type countingSearcher struct {
	calls int
	err   error
}

func (s *countingSearcher) Search(_ context.Context, _ string, _ int) ([]Hit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	info, _ := analyzer.LookupDTC("P0300")
	return []Hit{{DTCInfo: info, Score: 0.8, Source: SourceVector}}, nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCacheKey_Normalizes(t *testing.T) {
	a := CacheKey("Rough  Idle ", 5)
	if a != CacheKey("rough idle", 5) {
		t.Error("case and spacing should not change the key")
	}
	if a == CacheKey("rough idle", 10) {
		t.Error("topK should change the key")
	}
}

func TestCache_HitAfterMiss(t *testing.T) {
	rdb := newFakeRedis()
	next := &countingSearcher{}
	c := NewCache(next, rdb, time.Hour, quiet)

	first, err := c.Search(context.Background(), "misfire", 5)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Search(context.Background(), "MISFIRE", 5)
	if err != nil {
		t.Fatal(err)
	}
	if next.calls != 1 {
		t.Errorf("backend calls = %d, want 1", next.calls)
	}
	if len(second) != 1 || second[0].Code != first[0].Code || second[0].Score != 0.8 || second[0].Source != SourceVector {
		t.Errorf("cached hits = %+v", second)
	}
	if rdb.ttls[CacheKey("misfire", 5)] != time.Hour {
		t.Errorf("ttl = %v", rdb.ttls)
	}
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	rdb.setErr = errors.New("connection refused")
	next := &countingSearcher{}
	c := NewCache(next, rdb, time.Hour, quiet)

	for range 2 {
		hits, err := c.Search(context.Background(), "misfire", 5)
		if err != nil || len(hits) != 1 {
			t.Fatalf("hits=%v err=%v", hits, err)
		}
	}
	if next.calls != 2 {
		t.Errorf("backend calls = %d, want 2", next.calls)
	}
}

func TestCache_CorruptEntryAndBackendError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data[CacheKey("misfire", 5)] = "{not json"
	next := &countingSearcher{}
	c := NewCache(next, rdb, time.Minute, quiet)
	if hits, err := c.Search(context.Background(), "misfire", 5); err != nil || len(hits) != 1 {
		t.Fatalf("hits=%v err=%v", hits, err)
	}

	next.err = errors.New("qdrant down")
	if _, err := c.Search(context.Background(), "overheating", 5); err == nil {
		t.Error("expected backend error")
	}
	if _, ok := rdb.data[CacheKey("overheating", 5)]; ok {
		t.Error("errors must not be cached")
	}
}
