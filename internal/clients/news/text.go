package news

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const maxTextRunes = 2000

var (
	tagRe     = regexp.MustCompile(`<[^>]*>`)
	urlRe     = regexp.MustCompile(`https?://\S+`)
	handleRe  = regexp.MustCompile(`[@#]\w+`)
	spaceRe   = regexp.MustCompile(`\s+`)
	quoteRepl = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	folder    = cases.Fold()
)

// Clean turns feed markup into plain prompt text: tags, entities, links and
// social handles are removed, whitespace is collapsed and the result is
// truncated.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = norm.NFKC.String(s)
	s = quoteRepl.Replace(s)
	s = urlRe.ReplaceAllString(s, "")
	s = handleRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))

	if utf8.RuneCountInString(s) > maxTextRunes {
		r := []rune(s)
		s = string(r[:maxTextRunes]) + "..."
	}
	return s
}

// Mentions reports whether text mentions team, ignoring case. The full
// name and its last word ("Boston Celtics", "Celtics") both match.
func Mentions(text, team string) bool {
	if team == "" {
		return false
	}
	t := folder.String(text)
	name := folder.String(strings.TrimSpace(team))
	if strings.Contains(t, name) {
		return true
	}
	if i := strings.LastIndex(name, " "); i >= 0 {
		return strings.Contains(t, name[i+1:])
	}
	return false
}
