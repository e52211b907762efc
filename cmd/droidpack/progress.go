// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/droidpack/droidpack/internal/build"
)

// progress reports architecture transitions: a progress bar on terminals,
// debug log lines otherwise. It is safe for concurrent use.
type progress struct {
	mu     sync.Mutex
	w      io.Writer
	tty    bool
	logger *log.Logger
	bar    *progressbar.ProgressBar
}

func newProgress(w io.Writer, logger *log.Logger) *progress {
	return &progress{w: w, tty: isTerminal(w), logger: logger}
}

// start sizes the bar once the number of architectures is known.
func (p *progress) start(archs int) {
	if !p.tty || archs == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions(archs,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription("building"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
}

// Transition implements build.Observer.
func (p *progress) Transition(t build.Transition) {
	if p.logger != nil {
		p.logger.Debug("transition", "arch", t.Arch, "from", t.From, "to", t.To, "stage", t.Stage)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	desc := fmt.Sprintf("%s: %s", t.Arch, t.To)
	if t.To == build.StateFailed {
		desc = fmt.Sprintf("%s: failed(%s)", t.Arch, t.Stage)
	}
	p.bar.Describe(desc)
	if t.To.Terminal() {
		_ = p.bar.Add(1)
	}
}

// finish removes the bar before the summary is printed.
func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
