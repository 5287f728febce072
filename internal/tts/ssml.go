package tts

import "strings"

// StripSSML removes SSML/XML markup and collapses the whitespace left
// behind, so providers and the duration estimate both see the words the
// listener hears. Stripping already-plain text is a no-op, which makes the
// function safe to apply twice.
func StripSSML(s string) string {
	if !strings.Contains(s, "<") {
		return collapseSpace(s)
	}

	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
			// Tags separate words; keep a space so "one<break/>two" does
			// not fuse.
			b.WriteRune(' ')
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
