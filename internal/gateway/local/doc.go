// Package local is an in-process notification platform.
//
// It plays the role a mobile OS plays for the app: it owns installed
// notifications, fires them on time and forgets one-shots after they fire.
// Recurring triggers run on a robfig/cron engine in the configured timezone;
// one-shot triggers run on timers. Fired notifications go to a gateway.Sink.
//
// Installed notifications are persisted under their own store key so they
// survive restarts the way OS-held schedules do.
package local
