package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/storage"
)

// TrackRequest is the body of a track call. Both fields are coerced, so they
// arrive untyped from JSON.
type TrackRequest struct {
	IsCompleted        any `json:"isCompleted"`
	TargetCompletionAt any `json:"targetCompletionAt"`
}

// TrackCompletion records whether userID completed habitID on the request's
// calendar date. Repeating the call for the same date overwrites the flag.
func TrackCompletion(ctx context.Context, users storage.UserRepository, habits storage.HabitRepository,
	logs storage.HabitLogRepository, userID, habitID string, req *TrackRequest) (*internal.LogEntry, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	if err := validateID(habitID); err != nil {
		return nil, err
	}
	completed, err := CoerceBool(req.IsCompleted)
	if err != nil {
		return nil, err
	}
	day, err := ParseTargetDate(req.TargetCompletionAt)
	if err != nil {
		return nil, err
	}

	if _, err := users.GetUser(ctx, userID); err != nil {
		return nil, lookupError(err, "User not found")
	}
	if _, err := habits.GetHabit(ctx, habitID); err != nil {
		return nil, lookupError(err, "Habit not found")
	}

	entry := internal.LogEntry{TargetCompletionAt: day, IsCompleted: completed}
	if err := logs.UpsertLogEntry(ctx, userID, habitID, entry); err != nil {
		return nil, fmt.Errorf("%w: track completion: %v", internal.ErrInternal, err)
	}
	return &entry, nil
}

// lookupError turns a repository miss into a client-facing NotFound and any
// other failure into ErrInternal.
func lookupError(err error, notFoundMsg string) error {
	if errors.Is(err, internal.ErrNotFound) {
		return internal.WrapError(internal.ErrNotFound, notFoundMsg)
	}
	return fmt.Errorf("%w: %v", internal.ErrInternal, err)
}
