package model

import "time"

// Entity is implemented by every server-owned record the client caches.
type Entity interface {
	// Identity returns the server-assigned id; ok is false for unsaved values.
	Identity() (id int64, ok bool)
}

func identity(id int64) (int64, bool) {
	return id, id > 0
}

// LastModified returns the most recent of updatedAt and createdAt.
func LastModified(createdAt, updatedAt time.Time) time.Time {
	if updatedAt.IsZero() || updatedAt.Before(createdAt) {
		return createdAt
	}
	return updatedAt
}
