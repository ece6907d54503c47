// Package audio plays the warning and alarm clips through an external player
// process and falls back to the terminal bell when playback is impossible.
package audio
