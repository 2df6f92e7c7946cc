package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchCheckPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "embedded hyperlink",
			text:     `Buy now <a class="x" href="http://spam.example">here</a> cheap`,
			expected: `<a class="x" href="http://spam.example">here</a>`,
		},
		{
			name:     "us phone number",
			text:     "Call (555) 123-4567 today",
			expected: "(555) 123-4567 ",
		},
		{
			name:     "international phone number",
			text:     "Reach me at +61 400 000 000",
			expected: "+61 400 000 000",
		},
		{
			name:     "plain text",
			text:     "I build radios and repair valve amplifiers.",
			expected: "",
		},
		{
			name:     "empty",
			text:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, matchCheckPatterns(tt.text))
		})
	}
}

func TestIsWhitelistedURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		uri      string
		expected bool
	}{
		{"github profile", "https://github.com/someone", true},
		{"github repo", "https://github.com/someone/project", true},
		{"linkedin profile", "https://www.linkedin.com/in/someone", true},
		{"linkedin regional", "https://au.linkedin.com/in/someone/", true},
		{"twitter", "https://twitter.com/someone", true},
		{"twitter mobile", "http://mobile.twitter.com/someone", true},
		{"youtube channel", "https://www.youtube.com/channel/UCabc123", true},
		{"hackaday blog", "https://hackaday.com/2016/01/01/a-post/", true},
		{"hackaday io", "https://hackaday.io/someone", true},
		{"google plus", "https://plus.google.com/+Someone", true},
		{"random shop", "http://cheap-pills.example.com/", false},
		{"youtube video", "https://www.youtube.com/watch?v=abc", false},
		{"linkedin company", "https://www.linkedin.com/company/somecorp", false},
		{"github bare", "https://github.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, isWhitelistedURI(tt.uri))
		})
	}
}
