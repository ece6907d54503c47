package tgui

import "strings"

// ParseData splits callback data of the form "scope:action[:payload]". ok is
// false when either scope or action is missing.
func ParseData(data string) (scope, action, payload string, ok bool) {
	scope, rest, found := strings.Cut(strings.TrimSpace(data), ":")
	if !found || scope == "" {
		return "", "", "", false
	}
	action, payload, _ = strings.Cut(rest, ":")
	if action == "" {
		return "", "", "", false
	}
	return scope, action, payload, true
}
