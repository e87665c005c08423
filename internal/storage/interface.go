package storage

import (
	"context"

	"github.com/Efasquel/tracker/internal"
)

// Repositories return internal.ErrNotFound for absent entities and
// internal.ErrConflict for unique constraint violations.

type UserRepository interface {
	CreateUser(ctx context.Context, user *internal.User) error
	GetUser(ctx context.Context, id string) (*internal.User, error)
	GetUserByEmail(ctx context.Context, email string) (*internal.User, error)
	UpdateUser(ctx context.Context, id string, patch internal.UserPatch) (*internal.User, error)
	DeleteUser(ctx context.Context, id string) error

	// FollowNewHabit stores habit and appends it, active, to the user's followed
	// habits in one step. It fails with ErrConflict when the user already follows
	// a habit with the same name, leaving nothing behind.
	FollowNewHabit(ctx context.Context, userID string, habit *internal.Habit) error
	UnfollowHabit(ctx context.Context, userID, habitID string) error
	SetHabitActive(ctx context.Context, userID, habitID string, active bool) (*internal.User, error)
}

type HabitRepository interface {
	GetHabit(ctx context.Context, id string) (*internal.Habit, error)
	// GetHabits returns the habits that exist among ids; missing ids are skipped.
	GetHabits(ctx context.Context, ids []string) ([]internal.Habit, error)
	UpdateHabit(ctx context.Context, id string, patch internal.HabitPatch) (*internal.Habit, error)
}

type HabitLogRepository interface {
	GetHabitLog(ctx context.Context, userID, habitID string) (*internal.HabitLog, error)
	// UpsertLogEntry creates the (user, habit) log when absent, then replaces the
	// entry for entry.TargetCompletionAt or appends it. The whole operation is atomic.
	UpsertLogEntry(ctx context.Context, userID, habitID string, entry internal.LogEntry) error
	DeleteUserHabitLogs(ctx context.Context, userID string) error
}

type Store interface {
	UserRepository
	HabitRepository
	HabitLogRepository
	Close(ctx context.Context) error
}
