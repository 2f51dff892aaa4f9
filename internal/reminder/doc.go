// Package reminder holds the vaccination reminder core: due-date math,
// reminder instant derivation, the timer registrar and the notification
// rendering.
//
// Due dates move in calendar months with end-of-month clamping. A due date
// expands into one timer per configured lead day at the user's preferred
// time of day; instants already in the past are dropped. Timers are named
// "vaccine:<id>:lead:<days>" and mirrored in the alarms table, which is the
// source of truth for cancellation and restart rebuilds.
package reminder
