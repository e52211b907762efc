// SPDX-License-Identifier: MPL-2.0

package build

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/droidpack/droidpack/internal/toolchain"
	"github.com/droidpack/droidpack/pkg/abi"
)

const (
	StatePending   State = "pending"
	StateCompiling State = "compiling"
	StateLinking   State = "linking"
	StatePackaging State = "packaging"
	StatePackaged  State = "packaged"
	StateFailed    State = "failed"
)

// Failure labels that are not toolchain stages.
const (
	FailedBundle    = "bundle"
	FailedTimeout   = "timeout"
	FailedCancelled = "cancelled"
)

// transitions lists the states each state may move to.
var transitions = map[State][]State{
	StatePending:   {StateCompiling, StatePackaged, StateFailed},
	StateCompiling: {StateLinking, StateFailed},
	StateLinking:   {StatePackaging, StateFailed},
	StatePackaging: {StatePackaged, StateFailed},
}

type (
	// State is the position of one architecture in its pipeline.
	State string

	// Transition is one state change of an architecture pipeline.
	Transition struct {
		Arch abi.Arch
		From State
		To   State
		// Stage is the failure label when To is StateFailed.
		Stage string
		At    time.Time
	}

	// Observer is notified of every pipeline transition. Implementations
	// must be safe for concurrent use.
	Observer interface {
		Transition(Transition)
	}

	// ObserverFunc adapts a function to Observer.
	ObserverFunc func(Transition)

	// pipeline tracks the state of one architecture.
	pipeline struct {
		mu       sync.Mutex
		arch     abi.Arch
		state    State
		failedAt string
		observer Observer
	}

	// invalidTransitionError is a programming error in the emitter.
	invalidTransitionError struct {
		arch     abi.Arch
		from, to State
	}
)

// Transition implements Observer.
func (f ObserverFunc) Transition(t Transition) { f(t) }

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StatePackaged || s == StateFailed
}

// stateOf returns the state an architecture is in while stage runs.
func stateOf(stage toolchain.Stage) State {
	switch stage {
	case toolchain.StageCompile:
		return StateCompiling
	case toolchain.StageLink:
		return StateLinking
	default:
		return StatePackaging
	}
}

func newPipeline(arch abi.Arch, observer Observer) *pipeline {
	return &pipeline{arch: arch, state: StatePending, observer: observer}
}

func (e *invalidTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid pipeline transition %s -> %s", e.arch, e.from, e.to)
}

// advance moves the pipeline to next.
func (p *pipeline) advance(next State) error {
	return p.move(next, "")
}

// fail moves the pipeline to failed(stage). Failing a terminal pipeline
// is a no-op.
func (p *pipeline) fail(stage string) {
	p.mu.Lock()
	terminal := p.state.Terminal()
	p.mu.Unlock()
	if !terminal {
		_ = p.move(StateFailed, stage)
	}
}

func (p *pipeline) move(next State, stage string) error {
	p.mu.Lock()
	from := p.state
	if !slices.Contains(transitions[from], next) {
		p.mu.Unlock()
		return &invalidTransitionError{arch: p.arch, from: from, to: next}
	}
	p.state = next
	p.failedAt = stage
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.Transition(Transition{Arch: p.arch, From: from, To: next, Stage: stage, At: time.Now()})
	}
	return nil
}

func (p *pipeline) current() (State, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.failedAt
}
