// Package notifier delivers fired reminders to a chat transport.
//
// Deliveries go through a bounded queue drained by a small worker pool. Each
// send waits on a token-bucket rate limiter and is retried with jittered
// exponential backoff. Identical texts to the same chat inside the dedup
// window are suppressed; suppression windows can be persisted so a restart
// doesn't repeat a reminder that was just sent.
//
// The service implements gateway.Sink, so the notification platform hands
// fired reminders straight to it.
package notifier
