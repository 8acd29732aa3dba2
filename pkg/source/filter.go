package source

import "strings"

// Filter applies include/exclude keyword lists to item titles and excerpts.
// An empty include list lets every non-excluded item through.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter creates a filter; keywords match case-insensitively.
func NewFilter(include, exclude []string) *Filter {
	return &Filter{
		include: lowerAll(include),
		exclude: lowerAll(exclude),
	}
}

// Enabled reports whether the filter has any keywords at all.
func (f *Filter) Enabled() bool {
	return f != nil && (len(f.include) > 0 || len(f.exclude) > 0)
}

// Match returns true if the item should be kept.
func (f *Filter) Match(item Item) bool {
	if !f.Enabled() {
		return true
	}
	lower := strings.ToLower(item.Title + " " + item.Excerpt)

	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, kw := range f.include {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Apply returns the items that match and the number dropped.
func (f *Filter) Apply(items []Item) ([]Item, int) {
	if !f.Enabled() {
		return items, 0
	}
	kept := items[:0:0]
	for _, item := range items {
		if f.Match(item) {
			kept = append(kept, item)
		}
	}
	return kept, len(items) - len(kept)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
