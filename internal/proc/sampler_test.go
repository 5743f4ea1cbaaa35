package proc

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sberr "switchboard/internal/errors"
	"switchboard/session"
	"switchboard/util"
)

// fakeTarget records writes and can be flipped into returning
// UnknownSessionError, as the real registry does once a session ends.
type fakeTarget struct {
	mu    sync.Mutex
	stats map[string]session.StatValue
	dir   string
	gone  atomic.Bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{stats: make(map[string]session.StatValue)}
}

func (f *fakeTarget) SetStat(id, key string, v session.StatValue) error {
	if f.gone.Load() {
		return &sberr.UnknownSessionError{ID: id}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[key] = v
	return nil
}

func (f *fakeTarget) SetWorkingDir(id, dir string) error {
	if f.gone.Load() {
		return &sberr.UnknownSessionError{ID: id}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir = dir
	return nil
}

func (f *fakeTarget) stat(key string) (session.StatValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.stats[key]
	return v, ok
}

func runSampler(t *testing.T, s *Sampler, target Target) (cancel func(), done chan struct{}) {
	t.Helper()
	if s.Logger == nil {
		s.Logger = util.NewLogger(0)
	}
	ctx, stop := context.WithCancel(context.Background())
	done = make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, target)
	}()
	t.Cleanup(stop)
	return stop, done
}

func TestSampler_RecordsStats(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process stats need /proc")
	}

	target := newFakeTarget()
	s := &Sampler{
		SessionID: "sess-1",
		PID:       int32(os.Getpid()),
		Interval:  10 * time.Millisecond,
		TrackCwd:  true,
	}
	cancel, done := runSampler(t, s, target)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := target.stat(StatRSSBytes); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sampler never recorded rssBytes")
		case <-time.After(5 * time.Millisecond):
		}
	}

	rss, _ := target.stat(StatRSSBytes)
	if rss.Kind != session.StatInt || rss.Int <= 0 {
		t.Errorf("rssBytes = %+v, want positive int stat", rss)
	}
	if cpu, ok := target.stat(StatCPUPercent); !ok || cpu.Kind != session.StatFloat {
		t.Errorf("cpuPercent = %+v, want float stat", cpu)
	}

	target.mu.Lock()
	dir := target.dir
	target.mu.Unlock()
	if dir == "" {
		t.Error("working dir was never observed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop on context cancel")
	}
}

func TestSampler_CwdOffByDefault(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process stats need /proc")
	}

	target := newFakeTarget()
	s := &Sampler{
		SessionID: "sess-cwd",
		PID:       int32(os.Getpid()),
		Interval:  10 * time.Millisecond,
	}
	_, _ = runSampler(t, s, target)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := target.stat(StatRSSBytes); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sampler never recorded rssBytes")
		case <-time.After(5 * time.Millisecond):
		}
	}

	target.mu.Lock()
	dir := target.dir
	target.mu.Unlock()
	if dir != "" {
		t.Errorf("working dir %q recorded without TrackCwd", dir)
	}
}

func TestSampler_StopsWhenSessionGone(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process stats need /proc")
	}

	target := newFakeTarget()
	target.gone.Store(true)

	s := &Sampler{
		SessionID: "sess-2",
		PID:       int32(os.Getpid()),
		Interval:  10 * time.Millisecond,
	}
	_, done := runSampler(t, s, target)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler kept running after the session was removed")
	}
}

func TestSampler_BadPID(t *testing.T) {
	s := &Sampler{SessionID: "sess-3", PID: -1, Interval: 10 * time.Millisecond}
	_, done := runSampler(t, s, newFakeTarget())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler should give up on a nonexistent pid")
	}
}
