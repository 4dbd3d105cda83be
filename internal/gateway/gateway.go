// Package gateway defines the boundary to the platform notification service.
//
// The scheduler depends on Gateway only; concrete platforms live in
// subpackages (see gateway/local) and tests use hand-written fakes.
package gateway

import (
	"context"

	"habitbell/internal/reminder"
)

// Gateway installs and cancels single notifications on the platform.
//
// Contract:
//   - Install returns an opaque handle, reminder.ErrPermissionDenied when
//     permission was never granted, or an error wrapping
//     reminder.ErrPlatformScheduling for any other rejection.
//   - Cancel and CancelAll are idempotent: unknown or already cancelled
//     handles are not an error.
//   - SendNow is fire-and-forget and returns no handle.
type Gateway interface {
	Install(ctx context.Context, tr reminder.Trigger, c reminder.Content) (handle string, err error)
	Cancel(ctx context.Context, handle string) error
	CancelAll(ctx context.Context) error
	SendNow(ctx context.Context, c reminder.Content, p reminder.Priority) error
	RequestPermission(ctx context.Context) (granted bool, err error)
}

// Lister is implemented by gateways that can enumerate what they will fire.
// Not every platform exposes a reliable listing, so it is optional.
type Lister interface {
	Scheduled(ctx context.Context) ([]string, error)
}

// Sink receives notifications a gateway fires.
type Sink interface {
	Deliver(ctx context.Context, c reminder.Content, p reminder.Priority) error
}
