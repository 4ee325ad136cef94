package content

import "sort"

// imageKeys are the field names that hold blob references across all sections.
var imageKeys = map[string]bool{
	"image":    true,
	"imageSrc": true,
	"images":   true,
	"logo":     true,
	"photo":    true,
	"avatar":   true,
}

// ImageRefs walks v and returns every non-empty string stored under an image
// field, in traversal order without duplicates. Nested objects and arrays are
// followed, so team members inside a category are covered.
func ImageRefs(v any) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	walkRefs(v, false, add)
	return out
}

func walkRefs(v any, underImageKey bool, add func(string)) {
	switch t := v.(type) {
	case string:
		if underImageKey {
			add(t)
		}
	case Record:
		walkObject(t, add)
	case map[string]any:
		walkObject(t, add)
	case []Record:
		for _, r := range t {
			walkObject(r, add)
		}
	case []any:
		for _, e := range t {
			walkRefs(e, underImageKey, add)
		}
	case []string:
		for _, s := range t {
			walkRefs(s, underImageKey, add)
		}
	}
}

func walkObject(m map[string]any, add func(string)) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		walkRefs(m[k], imageKeys[k], add)
	}
}

// DroppedRefs returns the references held by before that after no longer holds.
func DroppedRefs(before, after any) []string {
	keep := map[string]bool{}
	for _, r := range ImageRefs(after) {
		keep[r] = true
	}
	var out []string
	for _, r := range ImageRefs(before) {
		if !keep[r] {
			out = append(out, r)
		}
	}
	return out
}
