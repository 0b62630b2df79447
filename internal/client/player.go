package client

import (
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"recscribe/internal/transcript"
)

// Audio is the shared playback element every snippet row drives.
type Audio interface {
	Seek(seconds float64) error
	Play() error
	Pause() error
}

type Timer interface {
	Stop() bool
}

// Clock schedules the pause at the end of a snippet.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Row is one snippet in the player.
type Row struct {
	Text   string
	Start  float64
	End    float64
	Active bool
}

// Player plays one snippet at a time. Activating a row cancels the pause
// scheduled by the previous one.
type Player struct {
	audio Audio
	clock Clock

	mu      sync.Mutex
	rows    []Row
	pending Timer
}

// NewPlayer builds rows from snippets. clock may be nil.
func NewPlayer(audio Audio, snippets []transcript.Snippet, clock Clock) *Player {
	if clock == nil {
		clock = systemClock{}
	}
	rows := make([]Row, len(snippets))
	for i, sn := range snippets {
		rows[i] = Row{Text: sn.Transcript, Start: sn.Start, End: sn.End}
	}
	return &Player{audio: audio, clock: clock, rows: rows}
}

// Activate highlights row i alone and plays it from its start offset.
func (p *Player) Activate(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.rows) {
		return fmt.Errorf("no snippet %d", i)
	}
	for j := range p.rows {
		p.rows[j].Active = false
	}
	row := &p.rows[i]
	row.Active = true

	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	if err := p.audio.Seek(row.Start); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if err := p.audio.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	d := time.Duration((row.End - row.Start) * float64(time.Second))
	if d < 0 {
		d = 0
	}
	var timer Timer
	timer = p.clock.AfterFunc(d, func() {
		p.mu.Lock()
		current := p.pending == timer
		if current {
			p.pending = nil
		}
		p.mu.Unlock()
		if current {
			_ = p.audio.Pause()
		}
	})
	p.pending = timer
	return nil
}

// Rows returns a copy of the rows with their highlight state.
func (p *Player) Rows() []Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Row(nil), p.rows...)
}

// Active is the index of the highlighted row, or -1.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.rows {
		if r.Active {
			return i
		}
	}
	return -1
}

// Stop cancels any scheduled pause and pauses the audio.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	p.mu.Unlock()
	return p.audio.Pause()
}

// FFPlay plays a URL with ffplay. Each Play starts a new process at the
// last Seek offset; Pause ends it.
type FFPlay struct {
	Path string
	URL  string

	mu     sync.Mutex
	offset float64
	cmd    *exec.Cmd
}

func NewFFPlay(path, url string) *FFPlay {
	if path == "" {
		path = "ffplay"
	}
	return &FFPlay{Path: path, URL: url}
}

func (a *FFPlay) Seek(seconds float64) error {
	a.mu.Lock()
	a.offset = seconds
	a.mu.Unlock()
	return nil
}

func (a *FFPlay) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.killLocked()
	cmd := exec.Command(a.Path, "-nodisp", "-autoexit", "-loglevel", "quiet",
		"-ss", strconv.FormatFloat(a.offset, 'f', 3, 64), a.URL)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	a.cmd = cmd
	go func() { _ = cmd.Wait() }()
	return nil
}

func (a *FFPlay) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.killLocked()
	return nil
}

func (a *FFPlay) killLocked() {
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
	}
	a.cmd = nil
}
