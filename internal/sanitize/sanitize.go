// Package sanitize strips HTML markup from user-supplied message content
// before it is persisted or broadcast. Chat content in this system is plain
// text: the policy used here (bluemonday.StrictPolicy) removes all tags
// rather than allowing a safe subset, since no rich-text formatting is part
// of the wire protocol.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = bluemonday.StrictPolicy()

// Content strips any HTML markup from message content, returning plain text.
func Content(raw string) string {
	return policy.Sanitize(raw)
}
