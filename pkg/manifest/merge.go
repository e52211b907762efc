// SPDX-License-Identifier: MPL-2.0

package manifest

import "fmt"

// Merge folds fragments left to right into a new manifest.
//
// Scalar keys take the value of the last fragment that sets them. List keys
// append the items of each later fragment, dropping duplicates and keeping
// first-seen order. The inputs are not modified.
func Merge(fragments ...*Manifest) (*Manifest, []Diagnostic) {
	out := New()
	var diags []Diagnostic

	for _, frag := range fragments {
		if frag == nil {
			continue
		}
		for _, name := range frag.order {
			src := frag.sections[name]
			dst := out.ensure(name)
			for _, key := range src.keys {
				next := src.values[key]
				prev, exists := dst.values[key]
				if !exists {
					dst.set(key, next.clone())
					continue
				}
				merged, diag := mergeValue(name, key, prev, next)
				if diag != nil {
					diags = append(diags, *diag)
				}
				dst.set(key, merged)
			}
		}
	}
	return out, diags
}

func mergeValue(section, key string, prev, next Value) (Value, *Diagnostic) {
	if prev.Kind == KindList || next.Kind == KindList {
		merged := Value{
			Kind:   KindList,
			Items:  appendUnique(prev.List(), next.List()),
			Origin: prev.Origin,
		}
		return merged, nil
	}

	if prev.Equal(next) {
		return next.clone(), nil
	}
	return next.clone(), &Diagnostic{
		Kind:     DiagScalarOverride,
		Section:  section,
		Key:      key,
		Origin:   next.Origin,
		Previous: prev.Origin,
		Message:  fmt.Sprintf("value %q replaces %q", next.Text, prev.Text),
	}
}

// ApplyProfile returns a copy of m in which every "<section>@<profile>"
// section is merged over its base section, then removes all profile
// sections. Profile sections for other profiles are reported and dropped.
func ApplyProfile(m *Manifest, profile string) (*Manifest, []Diagnostic) {
	base := New()
	overlay := New()
	var diags []Diagnostic

	for _, name := range m.order {
		src := m.sections[name]
		rest, p, hasProfile := cutProfile(name)
		switch {
		case !hasProfile:
			copySection(base, name, src)
		case p == profile:
			copySection(overlay, rest, src)
		default:
			var origin Origin
			if len(src.keys) > 0 {
				origin = src.values[src.keys[0]].Origin
			}
			diags = append(diags, Diagnostic{
				Kind: DiagUnusedProfile, Section: name, Origin: origin,
				Message: fmt.Sprintf("profile %q is not selected; section ignored", p),
			})
		}
	}

	merged, mergeDiags := Merge(base, overlay)
	return merged, append(diags, mergeDiags...)
}

func cutProfile(name string) (rest, profile string, ok bool) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '@' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}

func copySection(dst *Manifest, name string, src *Section) {
	s := dst.ensure(name)
	for _, key := range src.keys {
		s.set(key, src.values[key].clone())
	}
}
