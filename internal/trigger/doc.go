// Package trigger converts reminder triggers into concrete fire times and
// recurrence rules.
//
// Everything here is pure: callers pass "now" explicitly, and the location of
// "now" decides which wall clock daily/weekly triggers are evaluated in.
//
// Weekday numbering follows time.Weekday: 0=Sunday .. 6=Saturday.
package trigger
