package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/auth"
	"github.com/Efasquel/tracker/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=admin host member ancient"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UpdateUserRequest struct {
	Email *string `json:"email" validate:"omitempty,email"`
	Name  *string `json:"name" validate:"omitempty,min=1"`
	Role  *string `json:"role" validate:"omitempty,oneof=admin host member ancient"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userValidationError reports a bad role on its own, like registration
// always has; everything else shares one message.
func userValidationError(err error, fallback string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Role" {
				return invalid("Invalid role.")
			}
		}
	}
	return invalid(fallback)
}

func ValidateRegisterRequest(req *RegisterRequest) error {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return userValidationError(err, "Invalid email or password or name.")
	}
	return nil
}

func Register(ctx context.Context, users storage.UserRepository, req *RegisterRequest) (*internal.User, error) {
	if err := ValidateRegisterRequest(req); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", internal.ErrInternal, err)
	}
	role := internal.Role(req.Role)
	if role == "" {
		role = internal.RoleMember
	}

	now := time.Now().UTC()
	user := &internal.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
		Habits:       []internal.FollowedHabit{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, internal.ErrConflict) {
			return nil, invalid("User already exists")
		}
		return nil, fmt.Errorf("%w: create user: %v", internal.ErrInternal, err)
	}
	return user, nil
}

// Login checks the credentials and returns a signed token for the user.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func Login(ctx context.Context, users storage.UserRepository, tokens auth.TokenProvider, req *LoginRequest) (string, error) {
	badCredentials := invalid("Invalid email or password.")
	if err := validate.Struct(req); err != nil {
		return "", badCredentials
	}
	user, err := users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			return "", badCredentials
		}
		return "", fmt.Errorf("%w: find user: %v", internal.ErrInternal, err)
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return "", badCredentials
	}
	token, err := tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("%w: issue token: %v", internal.ErrInternal, err)
	}
	return token, nil
}

func GetUser(ctx context.Context, users storage.UserRepository, id string) (*internal.User, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	user, err := users.GetUser(ctx, id)
	if err != nil {
		return nil, lookupError(err, "User not found")
	}
	return user, nil
}

// DeleteUser removes the user and every habit log they own. Habits they
// created stay, since other users may follow them.
func DeleteUser(ctx context.Context, users storage.UserRepository, logs storage.HabitLogRepository, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := users.DeleteUser(ctx, id); err != nil {
		return lookupError(err, "User not found")
	}
	if err := logs.DeleteUserHabitLogs(ctx, id); err != nil {
		return fmt.Errorf("%w: delete habit logs: %v", internal.ErrInternal, err)
	}
	return nil
}

func UpdateUser(ctx context.Context, users storage.UserRepository, id string, req *UpdateUserRequest) (*internal.User, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if req.Email != nil {
		e := normalizeEmail(*req.Email)
		req.Email = &e
	}
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		req.Name = &n
	}
	if err := validate.Struct(req); err != nil {
		return nil, userValidationError(err, invalidFieldsMsg)
	}

	patch := internal.UserPatch{Email: req.Email, Name: req.Name}
	if req.Role != nil {
		r := internal.Role(*req.Role)
		patch.Role = &r
	}
	user, err := users.UpdateUser(ctx, id, patch)
	if err != nil {
		if errors.Is(err, internal.ErrConflict) {
			return nil, invalid("User already exists")
		}
		return nil, lookupError(err, "User not found")
	}
	return user, nil
}
