package service

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/auth"
	"github.com/Efasquel/tracker/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *storage.FileStorage {
	t.Helper()
	s := storage.NewMemoryStorage(internal.NewNopLogger())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func registerUser(t *testing.T, s storage.Store, email string) *internal.User {
	t.Helper()
	u, err := Register(context.Background(), s, &RegisterRequest{Email: email, Password: "secret", Name: "Test User"})
	require.NoError(t, err)
	return u
}

func createHabit(t *testing.T, s storage.Store, userID, name string, score any) *internal.Habit {
	t.Helper()
	h, err := CreateHabitForUser(context.Background(), s, userID, userID, &CreateHabitRequest{
		Name: name, DefaultScore: score, IsMandatory: true,
	})
	require.NoError(t, err)
	return h
}

func track(t *testing.T, s storage.Store, userID, habitID string, date any, completed any) error {
	t.Helper()
	_, err := TrackCompletion(context.Background(), s, s, s, userID, habitID, &TrackRequest{
		IsCompleted: completed, TargetCompletionAt: date,
	})
	return err
}

func score(t *testing.T, s storage.Store, userID string) internal.Score {
	t.Helper()
	sc, err := ComputeScore(context.Background(), s, s, s, userID)
	require.NoError(t, err)
	return *sc
}

func TestCoerceBool(t *testing.T) {
	cases := []struct {
		in   any
		want bool
		ok   bool
	}{
		{true, true, true},
		{false, false, true},
		{"true", true, true},
		{"TRUE", true, true},
		{"False", false, true},
		{"FALSE", false, true},
		{"yes", false, false},
		{1.0, false, false},
		{nil, false, false},
	}
	for _, tc := range cases {
		got, err := CoerceBool(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, internal.ErrValidation, "%v", tc.in)
			continue
		}
		require.NoError(t, err, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}
}

func TestCoerceScore(t *testing.T) {
	got, err := CoerceScore(10.0)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	got, err = CoerceScore("15")
	require.NoError(t, err)
	assert.Equal(t, 15, got)

	got, err = CoerceScore(json.Number("3"))
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	for _, bad := range []any{0.0, -5.0, 2.5, "abc", "", nil, true} {
		_, err := CoerceScore(bad)
		assert.ErrorIs(t, err, internal.ErrValidation, "%v", bad)
	}
}

func TestParseTargetDate(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{
		"2024-01-01",
		"2024-01-01T18:30:00",
		"2024-01-01T18:30:00Z",
		"2024-01-01T23:59:59.999Z",
		"2024-01-02T01:00:00+02:00",
		float64(want.Add(13 * time.Hour).UnixMilli()),
	} {
		got, err := ParseTargetDate(in)
		require.NoError(t, err, "%v", in)
		assert.True(t, want.Equal(got), "%v parsed as %v", in, got)
	}

	edge := []struct {
		in   any
		want time.Time
	}{
		{"0000-01-01", time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"9999-12-31T23:59:59Z", time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)},
		{json.Number("1704067200000"), want},
	}
	for _, tc := range edge {
		got, err := ParseTargetDate(tc.in)
		require.NoError(t, err, "%v", tc.in)
		assert.True(t, tc.want.Equal(got), "%v parsed as %v", tc.in, got)
	}

	for _, bad := range []any{
		"not-a-date", "2024-13-01", "", true, nil,
		1e15, -1e14, math.MaxFloat64, math.Inf(1), 1.5,
		json.Number("1e15"), json.Number("-100000000000000"),
		"0000-01-01T00:00:00+01:00",
	} {
		_, err := ParseTargetDate(bad)
		assert.ErrorIs(t, err, internal.ErrValidation, "%v", bad)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	tokens := auth.NewJWTProvider("test-secret", time.Hour)

	u, err := Register(ctx, s, &RegisterRequest{Email: " Ada@Example.com ", Password: "pw", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, internal.RoleMember, u.Role)
	assert.NotEqual(t, "pw", u.PasswordHash)

	_, err = Register(ctx, s, &RegisterRequest{Email: "ada@example.com", Password: "pw", Name: "Ada"})
	assert.ErrorIs(t, err, internal.ErrValidation)
	assert.Equal(t, "User already exists", internal.PublicMessage(err, ""))

	_, err = Register(ctx, s, &RegisterRequest{Email: "bob@example.com", Password: "pw", Name: "Bob", Role: "king"})
	assert.Equal(t, "Invalid role.", internal.PublicMessage(err, ""))

	_, err = Register(ctx, s, &RegisterRequest{Email: "bob@example.com", Name: "Bob"})
	assert.Equal(t, "Invalid email or password or name.", internal.PublicMessage(err, ""))

	token, err := Login(ctx, s, tokens, &LoginRequest{Email: "ADA@example.com", Password: "pw"})
	require.NoError(t, err)
	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, err = Login(ctx, s, tokens, &LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, internal.ErrValidation)
	_, err = Login(ctx, s, tokens, &LoginRequest{Email: "nobody@example.com", Password: "pw"})
	assert.ErrorIs(t, err, internal.ErrValidation)
	_, err = Login(ctx, s, tokens, &LoginRequest{Email: "ada@example.com"})
	assert.ErrorIs(t, err, internal.ErrValidation)
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	a := registerUser(t, s, "a@example.com")
	registerUser(t, s, "b@example.com")

	name := "Renamed"
	role := "host"
	u, err := UpdateUser(ctx, s, a.ID, &UpdateUserRequest{Name: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", u.Name)
	assert.Equal(t, internal.RoleHost, u.Role)
	assert.Equal(t, "a@example.com", u.Email)

	taken := "B@example.com"
	_, err = UpdateUser(ctx, s, a.ID, &UpdateUserRequest{Email: &taken})
	assert.Equal(t, "User already exists", internal.PublicMessage(err, ""))

	badRole := "king"
	_, err = UpdateUser(ctx, s, a.ID, &UpdateUserRequest{Role: &badRole})
	assert.ErrorIs(t, err, internal.ErrValidation)

	_, err = UpdateUser(ctx, s, uuid.NewString(), &UpdateUserRequest{Name: &name})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	_, err = UpdateUser(ctx, s, "not-an-id", &UpdateUserRequest{Name: &name})
	assert.ErrorIs(t, err, internal.ErrValidation)
}

func TestDeleteUser_RemovesLogs(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	h := createHabit(t, s, u.ID, "Run", 10)
	require.NoError(t, track(t, s, u.ID, h.ID, "2024-01-01", true))

	require.NoError(t, DeleteUser(ctx, s, s, u.ID))

	_, err := GetUser(ctx, s, u.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	_, err = GetHabitLog(ctx, s, u.ID, h.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)
	assert.ErrorIs(t, DeleteUser(ctx, s, s, u.ID), internal.ErrNotFound)
}

func TestCreateHabit_DuplicateNameConflicts(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	createHabit(t, s, u.ID, "Run", 10)

	_, err := CreateHabitForUser(ctx, s, u.ID, u.ID, &CreateHabitRequest{Name: "Run", DefaultScore: 5, IsMandatory: "false"})
	assert.ErrorIs(t, err, internal.ErrConflict)
	assert.Equal(t, 409, internal.StatusFor(err))

	other := registerUser(t, s, "b@example.com")
	createHabit(t, s, other.ID, "Run", 10)
}

func TestCreateHabit_Validation(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")

	bad := []*CreateHabitRequest{
		{Name: "", DefaultScore: 10, IsMandatory: true},
		{Name: "Run", DefaultScore: "ten", IsMandatory: true},
		{Name: "Run", DefaultScore: 10, IsMandatory: "maybe"},
		{Name: "Run", DefaultScore: 10},
		{Name: "Run", Description: 42.0, DefaultScore: 10, IsMandatory: true},
	}
	for _, req := range bad {
		_, err := CreateHabitForUser(ctx, s, u.ID, u.ID, req)
		assert.ErrorIs(t, err, internal.ErrValidation, "%+v", req)
	}

	_, err := CreateHabitForUser(ctx, s, uuid.NewString(), u.ID, &CreateHabitRequest{Name: "Run", DefaultScore: 10, IsMandatory: true})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	h, err := CreateHabitForUser(ctx, s, u.ID, u.ID, &CreateHabitRequest{
		Name: "Read", Description: "pages", DefaultScore: "7", IsMandatory: "FALSE",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, h.DefaultScore)
	assert.False(t, h.IsMandatory)
	assert.Equal(t, "pages", h.Description)
}

func TestTrackCompletion_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	h := createHabit(t, s, u.ID, "Run", 10)

	require.NoError(t, track(t, s, u.ID, h.ID, "2024-01-01T08:00:00Z", true))
	require.NoError(t, track(t, s, u.ID, h.ID, "2024-01-01T21:00:00Z", true))

	l, err := GetHabitLog(ctx, s, u.ID, h.ID)
	require.NoError(t, err)
	require.Len(t, l.Logs, 1)
	assert.True(t, l.Logs[0].IsCompleted)

	require.NoError(t, track(t, s, u.ID, h.ID, "2024-01-01", "false"))
	l, err = GetHabitLog(ctx, s, u.ID, h.ID)
	require.NoError(t, err)
	require.Len(t, l.Logs, 1)
	assert.False(t, l.Logs[0].IsCompleted)
}

func TestTrackCompletion_Errors(t *testing.T) {
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	h := createHabit(t, s, u.ID, "Run", 10)

	assert.ErrorIs(t, track(t, s, u.ID, h.ID, "not-a-date", true), internal.ErrValidation)
	assert.ErrorIs(t, track(t, s, u.ID, h.ID, "2024-01-01", "yes"), internal.ErrValidation)
	assert.ErrorIs(t, track(t, s, "bad-id", h.ID, "2024-01-01", true), internal.ErrValidation)
	assert.ErrorIs(t, track(t, s, uuid.NewString(), h.ID, "2024-01-01", true), internal.ErrNotFound)
	assert.ErrorIs(t, track(t, s, u.ID, uuid.NewString(), "2024-01-01", true), internal.ErrNotFound)

	_, err := GetHabitLog(context.Background(), s, u.ID, h.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound, "rejected calls must not create a log")
}

func TestComputeScore(t *testing.T) {
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	run := createHabit(t, s, u.ID, "Run", 10)

	assert.Equal(t, internal.Score{Score: 0, ScoreMax: 0}, score(t, s, u.ID))

	require.NoError(t, track(t, s, u.ID, run.ID, "2024-01-01", true))
	require.NoError(t, track(t, s, u.ID, run.ID, "2024-01-02", false))
	assert.Equal(t, internal.Score{Score: 10, ScoreMax: 20}, score(t, s, u.ID))

	read := createHabit(t, s, u.ID, "Read", "5")
	require.NoError(t, track(t, s, u.ID, read.ID, "2024-01-01", true))
	assert.Equal(t, internal.Score{Score: 15, ScoreMax: 25}, score(t, s, u.ID))

	_, err := SetHabitActive(context.Background(), s, u.ID, read.ID, &SetActiveRequest{IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, internal.Score{Score: 10, ScoreMax: 20}, score(t, s, u.ID))
}

func TestComputeScore_UsesCurrentDefaultScore(t *testing.T) {
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	run := createHabit(t, s, u.ID, "Run", 10)
	require.NoError(t, track(t, s, u.ID, run.ID, "2024-01-01", true))

	_, err := UpdateHabit(context.Background(), s, run.ID, &UpdateHabitRequest{DefaultScore: 3.0})
	require.NoError(t, err)
	assert.Equal(t, internal.Score{Score: 3, ScoreMax: 3}, score(t, s, u.ID))
}

func TestComputeScore_UnknownUser(t *testing.T) {
	s := setupStore(t)
	_, err := ComputeScore(context.Background(), s, s, s, uuid.NewString())
	assert.ErrorIs(t, err, internal.ErrNotFound)

	_, err = ComputeScore(context.Background(), s, s, s, "nope")
	assert.ErrorIs(t, err, internal.ErrValidation)
}

func TestAggregateScore_Bounds(t *testing.T) {
	habits := []internal.Habit{{ID: "a", DefaultScore: 4}, {ID: "b", DefaultScore: 1}, {ID: "c", DefaultScore: 9}}
	logs := map[string]*internal.HabitLog{
		"a": {Logs: []internal.LogEntry{{IsCompleted: true}, {IsCompleted: false}, {IsCompleted: true}}},
		"b": {Logs: []internal.LogEntry{{IsCompleted: false}}},
	}
	s := AggregateScore(habits, logs)
	assert.Equal(t, internal.Score{Score: 8, ScoreMax: 13}, s)
	assert.GreaterOrEqual(t, s.Score, 0)
	assert.LessOrEqual(t, s.Score, s.ScoreMax)
}

func TestUnfollowAndUpdateHabit(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	u := registerUser(t, s, "a@example.com")
	run := createHabit(t, s, u.ID, "Run", 10)

	name := "Jog"
	h, err := UpdateHabit(ctx, s, run.ID, &UpdateHabitRequest{Name: &name, IsMandatory: "false"})
	require.NoError(t, err)
	assert.Equal(t, "Jog", h.Name)
	assert.False(t, h.IsMandatory)
	assert.Equal(t, 10, h.DefaultScore)

	_, err = UpdateHabit(ctx, s, run.ID, &UpdateHabitRequest{DefaultScore: -1.0})
	assert.ErrorIs(t, err, internal.ErrValidation)
	_, err = UpdateHabit(ctx, s, uuid.NewString(), &UpdateHabitRequest{Name: &name})
	assert.ErrorIs(t, err, internal.ErrNotFound)

	require.NoError(t, UnfollowHabit(ctx, s, u.ID, run.ID))
	assert.ErrorIs(t, UnfollowHabit(ctx, s, u.ID, run.ID), internal.ErrNotFound)

	user, err := GetUser(ctx, s, u.ID)
	require.NoError(t, err)
	assert.Empty(t, user.Habits)
}
