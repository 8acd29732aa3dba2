package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	items := []Item{
		{Title: "New LLM released"},
		{Title: "Sports roundup"},
		{Title: "LLM sponsored post", Excerpt: "Sponsored"},
	}

	f := NewFilter([]string{"llm"}, []string{"sponsored"})
	kept, dropped := f.Apply(items)
	assert.Equal(t, 2, dropped)
	assert.Len(t, kept, 1)
	assert.Equal(t, "New LLM released", kept[0].Title)
}

func TestFilter_DisabledKeepsEverything(t *testing.T) {
	items := []Item{{Title: "a"}, {Title: "b"}}

	var nilFilter *Filter
	kept, dropped := nilFilter.Apply(items)
	assert.Equal(t, 0, dropped)
	assert.Len(t, kept, 2)

	kept, dropped = NewFilter(nil, []string{" "}).Apply(items)
	assert.Equal(t, 0, dropped)
	assert.Len(t, kept, 2)
}

func TestFilter_ExcludeOnly(t *testing.T) {
	f := NewFilter(nil, []string{"crypto"})
	assert.True(t, f.Match(Item{Title: "Rust 2.0"}))
	assert.False(t, f.Match(Item{Title: "Crypto winter"}))
}
