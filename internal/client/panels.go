package client

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type Panel int

const (
	PanelInProgress Panel = iota
	PanelSucceeded
	PanelFailed
)

func (p Panel) String() string {
	switch p {
	case PanelInProgress:
		return "in-progress"
	case PanelSucceeded:
		return "succeeded"
	case PanelFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const barWidth = 30

// Panels shows exactly one of the in-progress, succeeded and failed panels.
// When out is set every change is drawn on it.
type Panels struct {
	out io.Writer

	mu      sync.Mutex
	visible Panel
	value   int
}

func NewPanels(out io.Writer) *Panels {
	return &Panels{out: out}
}

// Render maps a progress value onto the panels: -1 fails, 100 succeeds,
// anything else is shown as in progress.
func (p *Panels) Render(pct int) {
	switch {
	case pct == FailedProgress:
		p.show(PanelFailed, pct)
	case pct >= 100:
		p.show(PanelSucceeded, 100)
	case pct < 0:
		p.show(PanelInProgress, 0)
	default:
		p.show(PanelInProgress, pct)
	}
}

// Observe is a progress callback for an UploadSession.
func (p *Panels) Observe(pr Progress) {
	p.Render(pr.Percent)
}

func (p *Panels) Reset()   { p.show(PanelInProgress, 0) }
func (p *Panels) Succeed() { p.show(PanelSucceeded, 100) }
func (p *Panels) Fail()    { p.show(PanelFailed, FailedProgress) }

// Visible returns the panel on display and the bar value.
func (p *Panels) Visible() (Panel, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible, p.value
}

func (p *Panels) show(panel Panel, value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible, p.value = panel, value
	if p.out == nil {
		return
	}
	switch panel {
	case PanelInProgress:
		filled := value * barWidth / 100
		fmt.Fprintf(p.out, "\r[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), value)
	case PanelSucceeded:
		fmt.Fprintf(p.out, "\r%-*s\n", barWidth+7, "done")
	case PanelFailed:
		fmt.Fprintf(p.out, "\r%-*s\n", barWidth+7, "failed")
	}
}
