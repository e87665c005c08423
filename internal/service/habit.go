package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/storage"
	"github.com/google/uuid"
)

// CreateHabitRequest fields other than Name are coerced from loosely typed JSON.
type CreateHabitRequest struct {
	Name         string `json:"name"`
	Description  any    `json:"description"`
	DefaultScore any    `json:"defaultScore"`
	IsMandatory  any    `json:"isMandatory"`
}

type UpdateHabitRequest struct {
	Name         *string `json:"name"`
	Description  any     `json:"description"`
	DefaultScore any     `json:"defaultScore"`
	IsMandatory  any     `json:"isMandatory"`
}

type SetActiveRequest struct {
	IsActive any `json:"isActive"`
}

func optionalString(v any) (*string, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &s, nil
	}
	return nil, invalid(invalidFieldsMsg)
}

// CreateHabitForUser creates a habit authored by createdBy and makes userID
// follow it. A user cannot follow two habits with the same name.
func CreateHabitForUser(ctx context.Context, users storage.UserRepository, userID, createdBy string, req *CreateHabitRequest) (*internal.Habit, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid(invalidFieldsMsg)
	}
	description, err := optionalString(req.Description)
	if err != nil {
		return nil, err
	}
	score, err := CoerceScore(req.DefaultScore)
	if err != nil {
		return nil, err
	}
	mandatory, err := CoerceBool(req.IsMandatory)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	habit := &internal.Habit{
		ID:           uuid.NewString(),
		Name:         name,
		DefaultScore: score,
		IsMandatory:  mandatory,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if description != nil {
		habit.Description = *description
	}

	if err := users.FollowNewHabit(ctx, userID, habit); err != nil {
		if errors.Is(err, internal.ErrConflict) {
			return nil, internal.WrapError(internal.ErrConflict, "Habit name already taken for this user.")
		}
		return nil, lookupError(err, "User not found")
	}
	return habit, nil
}

func UnfollowHabit(ctx context.Context, users storage.UserRepository, userID, habitID string) error {
	if err := validateID(userID); err != nil {
		return err
	}
	if err := validateID(habitID); err != nil {
		return err
	}
	if err := users.UnfollowHabit(ctx, userID, habitID); err != nil {
		return lookupError(err, "Habit not followed by user")
	}
	return nil
}

// SetHabitActive pauses or resumes a followed habit. Inactive habits keep
// their logs but drop out of the score.
func SetHabitActive(ctx context.Context, users storage.UserRepository, userID, habitID string, req *SetActiveRequest) (*internal.User, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	if err := validateID(habitID); err != nil {
		return nil, err
	}
	active, err := CoerceBool(req.IsActive)
	if err != nil {
		return nil, err
	}
	user, err := users.SetHabitActive(ctx, userID, habitID, active)
	if err != nil {
		return nil, lookupError(err, "Habit not followed by user")
	}
	return user, nil
}

func UpdateHabit(ctx context.Context, habits storage.HabitRepository, habitID string, req *UpdateHabitRequest) (*internal.Habit, error) {
	if err := validateID(habitID); err != nil {
		return nil, err
	}

	var patch internal.HabitPatch
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalid(invalidFieldsMsg)
		}
		patch.Name = &name
	}
	description, err := optionalString(req.Description)
	if err != nil {
		return nil, err
	}
	patch.Description = description
	if req.DefaultScore != nil {
		score, err := CoerceScore(req.DefaultScore)
		if err != nil {
			return nil, err
		}
		patch.DefaultScore = &score
	}
	if req.IsMandatory != nil {
		mandatory, err := CoerceBool(req.IsMandatory)
		if err != nil {
			return nil, err
		}
		patch.IsMandatory = &mandatory
	}

	habit, err := habits.UpdateHabit(ctx, habitID, patch)
	if err != nil {
		return nil, lookupError(err, "Habit not found")
	}
	return habit, nil
}

func GetHabitLog(ctx context.Context, logs storage.HabitLogRepository, userID, habitID string) (*internal.HabitLog, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	if err := validateID(habitID); err != nil {
		return nil, err
	}
	l, err := logs.GetHabitLog(ctx, userID, habitID)
	if err != nil {
		return nil, lookupError(err, "No logs for this habit")
	}
	return l, nil
}
