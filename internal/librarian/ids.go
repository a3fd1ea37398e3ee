package librarian

import "github.com/google/uuid"

// newTraceID, newFeedbackToken, and newPackID all draw from the same
// generator; kept as distinct names so call sites read as intent, not
// implementation.
func newTraceID() string      { return uuid.NewString() }
func newFeedbackToken() string { return uuid.NewString() }
func newPackID() string       { return uuid.NewString() }
