// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// expandVars substitutes $VAR, ${VAR} and ${VAR:-default} references in s
// using here-document rules: quotes are literal, and only '$', '`' and '\'
// are special. Command substitution is rejected. Undefined variables expand
// to the empty string and are returned so the caller can warn about them.
func expandVars(s string, lookup LookupFunc) (string, []string, error) {
	if !strings.ContainsAny(s, "$`") {
		return s, nil, nil
	}

	word, err := syntax.NewParser().Document(strings.NewReader(s))
	if err != nil {
		return "", nil, fmt.Errorf("invalid variable reference: %w", err)
	}

	var undefined []string
	cfg := &expand.Config{
		Env: expand.FuncEnviron(func(name string) string {
			v, ok := lookup(name)
			// The expander also queries shell internals such as IFS.
			if !ok && strings.Contains(s, name) {
				undefined = append(undefined, name)
			}
			return v
		}),
	}

	out, err := expand.Document(cfg, word)
	if err != nil {
		var unexpected expand.UnexpectedCommandError
		if errors.As(err, &unexpected) {
			return "", nil, errors.New("command substitution is not allowed in manifest values")
		}
		return "", nil, fmt.Errorf("expand %q: %w", s, err)
	}
	return out, dedupe(undefined), nil
}

func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
