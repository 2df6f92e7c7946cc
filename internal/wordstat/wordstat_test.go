package wordstat_test

import (
	"testing"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/wordstat"
	"github.com/stretchr/testify/assert"
)

func TestTokenise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		html     string
		expected []string
	}{
		{
			name:     "plain text",
			html:     "Hello World",
			expected: []string{"hello", "world"},
		},
		{
			name:     "markup stripped",
			html:     `<p>I build <b>robots</b> &amp; radios</p>`,
			expected: []string{"i", "build", "robots", "radios"},
		},
		{
			name:     "adjacent elements split words",
			html:     `<li>one</li><li>two</li>`,
			expected: []string{"one", "two"},
		},
		{
			name:     "script contents skipped",
			html:     `before<script>var x = "hidden";</script>after`,
			expected: []string{"before", "after"},
		},
		{
			name:     "punctuation separates",
			html:     "buy-now!!! cheap,deals",
			expected: []string{"buy", "now", "cheap", "deals"},
		},
		{
			name:     "empty",
			html:     "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			words := wordstat.Tokenise(tt.html)
			if tt.expected == nil {
				assert.Empty(t, words)
			} else {
				assert.Equal(t, tt.expected, words)
			}
		})
	}
}

func TestFrequency(t *testing.T) {
	t.Parallel()

	freq := wordstat.Frequency([]string{"spam", "ham", "spam"}, nil)
	assert.Equal(t, map[string]int{"spam": 2, "ham": 1}, freq)

	// Accumulates into an existing map.
	freq = wordstat.Frequency([]string{"spam"}, freq)
	assert.Equal(t, 3, freq["spam"])
}

func TestAdjacency(t *testing.T) {
	t.Parallel()

	freq := wordstat.Adjacency([]string{"call", "us", "now", "call", "us"}, nil)

	assert.Equal(t, 2, freq[wordstat.WordPair{Proceeding: "call", Following: "us"}])
	assert.Equal(t, 1, freq[wordstat.WordPair{Proceeding: "us", Following: "now"}])
	assert.Equal(t, 1, freq[wordstat.WordPair{Proceeding: "now", Following: "call"}])

	assert.Empty(t, wordstat.Adjacency([]string{"single"}, nil))
}
