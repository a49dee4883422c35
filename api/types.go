package api

import (
	"context"

	"onboarding-api/backend"
	"onboarding-api/domain"
	"onboarding-api/session"
)

// Sessions resolves the per-user onboarding session.
type Sessions interface {
	Get(userID string) *session.Session
	Launch(userID string) *session.Session
}

// EventPublisher hands intake events to the downstream queue.
type EventPublisher interface {
	EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate result submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// ProfileWriter mirrors onboarding results to the application backend.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, p backend.Profile) error
}
