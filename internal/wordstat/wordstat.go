// Package wordstat tokenises HTML profile text and computes word and
// word-pair frequencies for the classifier corpus.
package wordstat

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

// WordPair is an ordered pair of adjacent words.
type WordPair struct {
	Proceeding string
	Following  string
}

// Tokenise strips the markup from the given HTML fragment and returns the
// words that appear in its text, lowercased, in document order.
func Tokenise(htmlText string) []string {
	return splitWords(lower.String(htmlToText(htmlText)))
}

// Frequency counts how often each word appears in the list, accumulating
// into freq when given.
func Frequency(wordlist []string, freq map[string]int) map[string]int {
	if freq == nil {
		freq = make(map[string]int, len(wordlist))
	}

	for _, w := range wordlist {
		freq[w]++
	}

	return freq
}

// Adjacency counts how often each ordered pair of adjacent words appears in
// the list, accumulating into freq when given.
func Adjacency(wordlist []string, freq map[WordPair]int) map[WordPair]int {
	if freq == nil {
		freq = make(map[WordPair]int)
	}

	for i := 0; i+1 < len(wordlist); i++ {
		freq[WordPair{Proceeding: wordlist[i], Following: wordlist[i+1]}]++
	}

	return freq
}

// htmlToText extracts the text content of an HTML fragment, decoding any
// character references. Script and style bodies are skipped.
func htmlToText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var (
		builder strings.Builder
		skip    int
	)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return builder.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			} else {
				// Keep words in adjacent elements apart.
				builder.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
			} else {
				builder.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				builder.Write(tokenizer.Text())
			}
		}
	}
}

// splitWords breaks text into runs of letters and digits.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
