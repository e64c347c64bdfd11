package strata

import (
	"sort"
)

// SortParts orders parts so that every part appears after all parts named in
// its "after" list. Mutually independent parts are ordered ascending by name.
// Returns a DependencyCycleError and no partial result if the relation
// contains a cycle.
func SortParts(parts []*Part) ([]*Part, error) {
	// Working from a reverse-alphabetical list and prepending each selected
	// part yields the same order on every run.
	remaining := make([]*Part, len(parts))
	copy(remaining, parts)
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].Name > remaining[j].Name
	})

	sorted := make([]*Part, 0, len(parts))
	for len(remaining) > 0 {
		top := -1
		for i, part := range remaining {
			mentioned := false
			for _, other := range remaining {
				if dependsOn(other, part.Name) {
					mentioned = true
					break
				}
			}
			if !mentioned {
				top = i
				break
			}
		}
		if top < 0 {
			return nil, DependencyCycleError{}
		}

		sorted = append([]*Part{remaining[top]}, sorted...)
		remaining = append(remaining[:top], remaining[top+1:]...)
	}

	return sorted, nil
}

func dependsOn(part *Part, name string) bool {
	for _, dep := range part.Spec.After {
		if dep == name {
			return true
		}
	}
	return false
}

// PartByName returns the part with the given name from parts
func PartByName(name string, parts []*Part) (*Part, error) {
	for _, p := range parts {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, PartNotFoundErr{Part: name}
}

// PartsByName returns the parts corresponding to the given names. An empty
// name list selects all parts.
func PartsByName(names []string, parts []*Part) ([]*Part, error) {
	if len(names) == 0 {
		return parts, nil
	}

	res := make([]*Part, 0, len(names))
	for _, name := range names {
		p, err := PartByName(name, parts)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// PartDependencies returns the set of parts the given part comes after,
// optionally expanded transitively. Only safe on part lists whose relation
// is acyclic - SortParts rejects cycles upstream.
func PartDependencies(part *Part, parts []*Part, recursive bool) (map[string]*Part, error) {
	res := make(map[string]*Part)
	if err := collectDependencies(part, parts, recursive, res); err != nil {
		return nil, err
	}
	return res, nil
}

func collectDependencies(part *Part, parts []*Part, recursive bool, res map[string]*Part) error {
	for _, name := range part.Spec.After {
		dep, err := PartByName(name, parts)
		if err != nil {
			return err
		}
		if _, ok := res[dep.Name]; ok {
			continue
		}
		res[dep.Name] = dep
		if recursive {
			if err := collectDependencies(dep, parts, recursive, res); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasOverlayVisibility reports whether a part may observe overlay filesystem
// content: either it declares overlay content itself, or some part it
// (transitively) comes after does. Viewers memoizes parts already proven
// visible across repeated queries; pass the same map for all parts of a run.
func HasOverlayVisibility(part *Part, parts []*Part, viewers map[string]struct{}) (bool, error) {
	if viewers != nil {
		if _, ok := viewers[part.Name]; ok {
			return true, nil
		}
	}
	if part.HasOverlay() {
		markViewer(part, viewers)
		return true, nil
	}
	if len(part.Spec.After) == 0 {
		return false, nil
	}

	deps, err := PartDependencies(part, parts, false)
	if err != nil {
		return false, err
	}
	for _, dep := range deps {
		visible, err := HasOverlayVisibility(dep, parts, viewers)
		if err != nil {
			return false, err
		}
		if visible {
			markViewer(part, viewers)
			return true, nil
		}
	}

	return false, nil
}

func markViewer(part *Part, viewers map[string]struct{}) {
	if viewers == nil {
		return
	}
	viewers[part.Name] = struct{}{}
}

// PartsWithOverlay returns the parts which declare overlay content, in the
// order they appear in parts.
func PartsWithOverlay(parts []*Part) []*Part {
	var res []*Part
	for _, p := range parts {
		if p.HasOverlay() {
			res = append(res, p)
		}
	}
	return res
}
