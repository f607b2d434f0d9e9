package access

import "strings"

// Delta is the minimal change set turning one platform set into another.
type Delta struct {
	ToAdd    []string
	ToRemove []string
}

// Empty reports whether applying the delta would change nothing.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// Diff computes ToAdd = desired \ current and ToRemove = current \ desired.
// Membership is by identifier equality only; both inputs are treated as sets,
// so duplicates and blank identifiers are ignored. Result order follows first
// appearance in the respective input.
func Diff(current, desired []string) Delta {
	currentSet := toSet(current)
	desiredSet := toSet(desired)

	var delta Delta
	for _, id := range desired {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := currentSet[id]; !ok {
			delta.ToAdd = append(delta.ToAdd, id)
			currentSet[id] = struct{}{} // dedupe repeated desired entries
		}
	}
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := desiredSet[id]; !ok {
			delta.ToRemove = append(delta.ToRemove, id)
		}
	}
	return delta
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// dedupe trims, drops blanks, and removes duplicates preserving order.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
