package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "script tag", input: `Hello <script>alert('xss')</script> World`, expected: `Hello  World`},
		{name: "inline markup", input: `<b>2 cups</b> flour`, expected: `2 cups flour`},
		{name: "entities decoded", input: `salt &amp; pepper`, expected: `salt & pepper`},
		{name: "bare ampersand kept", input: `mac & cheese`, expected: `mac & cheese`},
		{name: "apostrophe kept", input: `Grandma's pie`, expected: `Grandma's pie`},
		{name: "surrounding space trimmed", input: "  dice onions \n", expected: `dice onions`},
		{name: "empty", input: ``, expected: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Text(tt.input))
		})
	}
}

func TestTextSlice(t *testing.T) {
	assert.Nil(t, TextSlice(nil))
	assert.Equal(t, []string{"one", "two", "two"}, TextSlice([]string{"<i>one</i>", "two", "two"}))
}

func TestDocument(t *testing.T) {
	input := `<html><head><style>p{color:red}</style></head><body>
<h1>Pie</h1><p>Mix   flour</p><script>track()</script><p>Bake</p></body></html>`

	assert.Equal(t, "Pie\nMix flour\nBake", Document(input))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "crème", Truncate("crème brûlée", 5))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0))
}
