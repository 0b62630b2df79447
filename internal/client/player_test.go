package client

import (
	"sync"
	"testing"
	"time"

	"recscribe/internal/transcript"
)

type fakeAudio struct {
	mu    sync.Mutex
	calls []string
	seeks []float64
}

func (a *fakeAudio) Seek(s float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "seek")
	a.seeks = append(a.seeks, s)
	return nil
}

func (a *fakeAudio) Play() error  { a.record("play"); return nil }
func (a *fakeAudio) Pause() error { a.record("pause"); return nil }

func (a *fakeAudio) record(call string) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
}

func (a *fakeAudio) count(call string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

var playerSnippets = []transcript.Snippet{
	{Transcript: "first", Start: 1.5, End: 3.0},
	{Transcript: "second", Start: 4.0, End: 4.25},
}

func TestPlayerActivate(t *testing.T) {
	audio := &fakeAudio{}
	clock := &fakeClock{}
	p := NewPlayer(audio, playerSnippets, clock)
	if p.Active() != -1 {
		t.Fatalf("no row should start active")
	}

	if err := p.Activate(0); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if p.Active() != 0 || audio.seeks[0] != 1.5 || audio.count("play") != 1 {
		t.Fatalf("row 0 not played: %v %v", audio.calls, audio.seeks)
	}
	if clock.timers[0].d != 1500*time.Millisecond {
		t.Fatalf("unexpected pause delay %s", clock.timers[0].d)
	}

	if err := p.Activate(1); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	rows := p.Rows()
	if rows[0].Active || !rows[1].Active {
		t.Fatalf("second activation must deactivate the first row: %+v", rows)
	}
	if !clock.timers[0].stopped {
		t.Fatalf("previous pause must be cancelled")
	}

	// a stale timer that fires anyway must not pause the new snippet
	clock.timers[0].f()
	if audio.count("pause") != 0 {
		t.Fatalf("stale pause reached audio")
	}
	clock.timers[1].f()
	if audio.count("pause") != 1 {
		t.Fatalf("expected pause at end of snippet")
	}
}

func TestPlayerActivateOutOfRange(t *testing.T) {
	p := NewPlayer(&fakeAudio{}, playerSnippets, &fakeClock{})
	if err := p.Activate(5); err == nil {
		t.Fatalf("expected error")
	}
	if p.Active() != -1 {
		t.Fatalf("no row should be active")
	}
}

func TestPlayerStop(t *testing.T) {
	audio := &fakeAudio{}
	clock := &fakeClock{}
	p := NewPlayer(audio, playerSnippets, clock)
	_ = p.Activate(1)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !clock.timers[0].stopped || audio.count("pause") != 1 {
		t.Fatalf("stop must cancel the timer and pause")
	}
}
