// Package tgui has small Telegram UI helpers: inline keyboards, callback data
// of the form "scope:action[:payload]", and HTML escaping for ParseMode HTML.
package tgui
