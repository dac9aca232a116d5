package wiki

import (
	"regexp"
	"strings"
)

// Comment pages store a DISPLAYTITLE directive alongside the body so the
// wiki renders the comment title. The directive is storage plumbing and
// must never reach the forum.

var templateRE = regexp.MustCompile(`\{\{[^}]+\}\}`)

func displayTitleAnnotation(title string) string {
	return "{{DISPLAYTITLE:\n" + title + "\n}}"
}

// AddAnnotations appends the title-display directive to wikitext before
// storage. A comment without a title is stored as-is.
func AddAnnotations(wikitext, title string) string {
	if title == "" {
		return wikitext
	}

	return wikitext + displayTitleAnnotation(title)
}

// StripAnnotations removes the title-display directive from wikitext,
// returning the body exactly as it was before AddAnnotations.
func StripAnnotations(wikitext, title string) string {
	if title == "" {
		return wikitext
	}

	return strings.ReplaceAll(wikitext, displayTitleAnnotation(title), "")
}

// StripTemplates removes every template invocation from wikitext. The
// forum has no template expansion, so this runs once at posting time,
// never on the stored body.
func StripTemplates(wikitext string) string {
	return templateRE.ReplaceAllString(wikitext, "")
}
