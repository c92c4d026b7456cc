package idempotency

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrCompute_CachesFirstResult(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	calls := 0
	compute := func() (any, error) {
		calls++
		return "result", nil
	}

	first, err := s.GetOrCompute("req-1", compute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := s.GetOrCompute("req-1", compute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if first != "result" || second != "result" {
		t.Errorf("expected cached result both times, got %v and %v", first, second)
	}
	if calls != 1 {
		t.Errorf("expected compute to run once, ran %d times", calls)
	}
}

func TestGetOrCompute_ConcurrentCallersSingleExecution(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func() (any, error) {
		calls.Add(1)
		close(started)
		<-release
		return 42, nil
	}

	const workers = 20
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.GetOrCompute("shared", compute)
			if err != nil {
				t.Errorf("worker %d: unexpected error %v", i, err)
			}
			results[i] = r
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 execution, got %d", got)
	}
	for i, r := range results {
		if r != 42 {
			t.Errorf("worker %d: expected shared result 42, got %v", i, r)
		}
	}
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	calls := 0
	boom := errors.New("boom")
	compute := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "recovered", nil
	}

	if _, err := s.GetOrCompute("req-1", compute); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	result, err := s.GetOrCompute("req-1", compute)
	if err != nil {
		t.Fatalf("expected success on second call, got %v", err)
	}
	if result != "recovered" {
		t.Errorf("expected recomputed result, got %v", result)
	}
	if calls != 2 {
		t.Errorf("expected 2 executions, got %d", calls)
	}
}

func TestGetOrCompute_FirstResultNeverOverwritten(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	if _, err := s.GetOrCompute("req-1", func() (any, error) { return "first", nil }); err != nil {
		t.Fatal(err)
	}
	result, err := s.GetOrCompute("req-1", func() (any, error) { return "second", nil })
	if err != nil {
		t.Fatal(err)
	}
	if result != "first" {
		t.Errorf("expected first result to stick, got %v", result)
	}
}

func TestPurge_RemovesExpiredRecords(t *testing.T) {
	s := New(Config{Retention: 50 * time.Millisecond})
	defer s.Close()

	now := time.Now()
	s.now = func() time.Time { return now }

	if _, err := s.GetOrCompute("old", func() (any, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return now.Add(100 * time.Millisecond) }
	if _, err := s.GetOrCompute("fresh", func() (any, error) { return 2, nil }); err != nil {
		t.Fatal(err)
	}

	s.purge()

	if _, ok := s.Get("old"); ok {
		t.Error("expected old record to be purged")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("expected fresh record to survive the purge")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 record after purge, got %d", s.Len())
	}
}
