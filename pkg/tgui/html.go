package tgui

import "html"

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }

// Pre wraps s in a preformatted block. Telegram wants balanced tags per
// message, so s must fit in one.
func Pre(s string) string {
	return "<pre>" + Esc(s) + "</pre>"
}
