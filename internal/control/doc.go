// Package control turns operator input (Telegram messages, inline buttons and
// stdin lines) into board edits and replies.
package control
