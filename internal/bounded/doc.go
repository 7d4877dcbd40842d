// Package bounded runs blocking-capable operations under a deadline.
//
// Run races an operation against a timer armed for the deadline's remaining
// budget. Whichever settles first decides the outcome: the operation's own
// value or error, or a *TimeoutError when the timer wins. The timer is owned
// by a single Run call and is stopped on every exit path.
package bounded
