// Package notifications delivers job and transcript events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, and
// per-event switches in the notifications config section suppress the rest.
// Callers depend only on the Service interface.
package notifications
