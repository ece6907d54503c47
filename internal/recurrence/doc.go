// Package recurrence computes when a periodic event next happens and how an
// operator should be alerted about it.
//
// Everything here is a pure function of its inputs (entry fields and a
// reference "now"). Callers own entry state and the polling loop.
package recurrence
