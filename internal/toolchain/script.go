// SPDX-License-Identifier: MPL-2.0

package toolchain

import (
	"fmt"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Scripted replaces stage commands of Base with shell scripts, such as the
// compile, link and package keys of a manifest's [toolchain] section.
// A stage mapped to an empty script is skipped.
type Scripted struct {
	Base    CommandBuilder
	Scripts map[Stage]string
}

// NewScripted validates the scripts and returns the builder.
func NewScripted(base CommandBuilder, scripts map[Stage]string) (*Scripted, error) {
	for stage, src := range scripts {
		if !slices.Contains(Stages(), stage) {
			return nil, fmt.Errorf("unknown toolchain stage %q", stage)
		}
		if _, err := syntax.NewParser().Parse(strings.NewReader(src), string(stage)); err != nil {
			return nil, fmt.Errorf("%s script syntax error: %w", stage, err)
		}
	}
	return &Scripted{Base: base, Scripts: scripts}, nil
}

// Command implements CommandBuilder.
func (s *Scripted) Command(stage Stage, job *Job) (*Invocation, error) {
	src, ok := s.Scripts[stage]
	if !ok {
		if s.Base == nil {
			return nil, nil
		}
		return s.Base.Command(stage, job)
	}
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return &Invocation{
		Arch:   job.Arch(),
		Stage:  stage,
		Script: src,
		Dir:    job.WorkDir,
	}, nil
}
