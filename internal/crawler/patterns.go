package crawler

import "regexp"

// checkPatterns match text fragments that spam profiles carry and
// legitimate ones rarely do. The matched substring itself is stored as a
// per-user token so moderators can see what fired.
var checkPatterns = []*regexp.Regexp{
	// Embedded hyperlink
	regexp.MustCompile(`<a .*href=".*">.*</a>`),
	// US-style telephone number
	regexp.MustCompile(`\([0-9]+\)[ 0-9\-]+`),
	// International telephone number
	regexp.MustCompile(`\+[0-9]+[ 0-9\-]+`),
	// Hybrid telephone (US/International)
	regexp.MustCompile(`\+[0-9]+ *\([0-9]+\)[ 0-9\-]+`),
}

// uriWhitelist lists link destinations that are common on genuine
// profiles. A profile link outside this list marks the user for review.
var uriWhitelist = []*regexp.Regexp{
	// Google Plus
	regexp.MustCompile(`^https?://plus.google.com/`),
	// LinkedIn
	regexp.MustCompile(`^https?://([a-z]{2}|www)\.linkedin\.com/in/[^/]+(|/.*)$`),
	// Github
	regexp.MustCompile(`^https?://github.com/[^/]+(|/.*)$`),
	// Twitter
	regexp.MustCompile(`^https?://(mobile\.|www\.|)twitter.com/[^/]+(|/.*)$`),
	// Youtube
	regexp.MustCompile(`^https?://(www.|)youtube.com/channel/`),
	// Hackaday.com
	regexp.MustCompile(`^https?://hackaday.com(|/.*)$`),
	// Hackaday.io
	regexp.MustCompile(`^https?://hackaday.io(|/.*)$`),
}

// matchCheckPatterns returns the substring matched by the first firing
// check pattern, or "" when none fire.
func matchCheckPatterns(text string) string {
	for _, pattern := range checkPatterns {
		if found := pattern.FindString(text); found != "" {
			return found
		}
	}

	return ""
}

// isWhitelistedURI reports whether the link URL points at a destination
// common on genuine profiles.
func isWhitelistedURI(uri string) bool {
	for _, pattern := range uriWhitelist {
		if pattern.MatchString(uri) {
			return true
		}
	}

	return false
}
