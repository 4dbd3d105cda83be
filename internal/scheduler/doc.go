// Package scheduler keeps the platform's installed notifications and the
// persisted registry in agreement.
//
// Every operation on a notification type runs under that type's FIFO lock,
// so calls for the same type apply in the order they were made while
// different types proceed concurrently. Replacing a type is all-or-nothing:
// if any install fails, the handles installed by that call are cancelled and
// the type is left empty.
//
// The registry is the scheduler's record of what the platform holds. After a
// restart, RestoreOnLaunch reloads it without touching the platform and
// Reconcile drops records the platform no longer knows about.
package scheduler
