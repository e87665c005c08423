package internal

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleHost    Role = "host"
	RoleMember  Role = "member"
	RoleAncient Role = "ancient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHost, RoleMember, RoleAncient:
		return true
	}
	return false
}

type FollowedHabit struct {
	HabitID  string `json:"habitId"`
	IsActive bool   `json:"isActive"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"passwordHash"`
	Name         string          `json:"name"`
	Role         Role            `json:"role"`
	Habits       []FollowedHabit `json:"habits"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// ActiveHabitIDs returns the ids of followed habits flagged active, in follow order.
func (u *User) ActiveHabitIDs() []string {
	ids := make([]string, 0, len(u.Habits))
	for _, h := range u.Habits {
		if h.IsActive {
			ids = append(ids, h.HabitID)
		}
	}
	return ids
}

func (u *User) Follows(habitID string) bool {
	for _, h := range u.Habits {
		if h.HabitID == habitID {
			return true
		}
	}
	return false
}

// PublicUser is the representation returned by the API. It never carries the password hash.
type PublicUser struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      Role            `json:"role"`
	Habits    []FollowedHabit `json:"habits"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	habits := u.Habits
	if habits == nil {
		habits = []FollowedHabit{}
	}
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Habits:    habits,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type Habit struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	DefaultScore int       `json:"defaultScore"` // points per completed day
	IsMandatory  bool      `json:"isMandatory"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type LogEntry struct {
	TargetCompletionAt time.Time `json:"targetCompletionAt"` // UTC midnight
	IsCompleted        bool      `json:"isCompleted"`
}

type HabitLog struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	HabitID   string     `json:"habitId"`
	Logs      []LogEntry `json:"logs"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Entry returns the entry logged for day, if any.
func (l *HabitLog) Entry(day time.Time) (LogEntry, bool) {
	for _, e := range l.Logs {
		if e.TargetCompletionAt.Equal(day) {
			return e, true
		}
	}
	return LogEntry{}, false
}

type Score struct {
	Score    int `json:"score"`
	ScoreMax int `json:"scoreMax"`
}

// UserPatch holds the optional fields of a partial user update.
type UserPatch struct {
	Email *string
	Name  *string
	Role  *Role
}

// HabitPatch holds the optional fields of a partial habit update.
type HabitPatch struct {
	Name         *string
	Description  *string
	DefaultScore *int
	IsMandatory  *bool
}

// TruncateToDate strips the time of day, keeping the UTC calendar date.
func TruncateToDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
