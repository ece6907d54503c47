package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is one inline button. Data goes out as callback_data unchanged.
type Button struct {
	Text string
	Data string
}

// Keyboard lays out rows of callback buttons as an inline reply markup.
// Empty rows are dropped.
func Keyboard(rows ...[]Button) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		btns := make([]tele.Btn, 0, len(r))
		for _, b := range r {
			btns = append(btns, tele.Btn{Text: b.Text, Data: b.Data})
		}
		out = append(out, rm.Row(btns...))
	}
	rm.Inline(out...)
	return rm
}
