package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/storage"
)

// ComputeScore sums, over the user's active habits, defaultScore for every
// completed day (score) and for every logged day (scoreMax). Habits without a
// log contribute nothing. The current defaultScore is applied to past days.
func ComputeScore(ctx context.Context, users storage.UserRepository, habits storage.HabitRepository,
	logs storage.HabitLogRepository, userID string) (*internal.Score, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		return nil, lookupError(err, "User not found")
	}

	active, err := habits.GetHabits(ctx, user.ActiveHabitIDs())
	if err != nil {
		return nil, fmt.Errorf("%w: load habits: %v", internal.ErrInternal, err)
	}

	habitLogs := make(map[string]*internal.HabitLog, len(active))
	for _, h := range active {
		l, err := logs.GetHabitLog(ctx, userID, h.ID)
		if errors.Is(err, internal.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: load habit log: %v", internal.ErrInternal, err)
		}
		habitLogs[h.ID] = l
	}

	score := AggregateScore(active, habitLogs)
	return &score, nil
}

// AggregateScore is the pure part of ComputeScore. logs is keyed by habit id.
func AggregateScore(habits []internal.Habit, logs map[string]*internal.HabitLog) internal.Score {
	var s internal.Score
	for _, h := range habits {
		l, ok := logs[h.ID]
		if !ok {
			continue
		}
		for _, e := range l.Logs {
			s.ScoreMax += h.DefaultScore
			if e.IsCompleted {
				s.Score += h.DefaultScore
			}
		}
	}
	return s
}
