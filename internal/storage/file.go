package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/google/uuid"
)

// FileStorage keeps every collection in memory and, when a data directory is
// set, mirrors it to JSON files. Writes are batched by a background worker.
type FileStorage struct {
	users      map[string]*internal.User     // id -> User
	emailIndex map[string]string             // email -> user id
	habits     map[string]*internal.Habit    // id -> Habit
	habitLogs  map[string]*internal.HabitLog // userID/habitID -> HabitLog
	mu         sync.RWMutex
	dir        string
	saveChan   chan struct{}
	shutdown   chan struct{}
	done       chan struct{} // closed when saveWorker exits
	saveDelay  time.Duration
	closeOnce  sync.Once
	logger     internal.Logger
	now        func() time.Time
}

const (
	usersFile     = "users.json"
	habitsFile    = "habits.json"
	habitLogsFile = "habit_logs.json"
)

// NewMemoryStorage returns a FileStorage that never touches disk.
func NewMemoryStorage(logger internal.Logger) *FileStorage {
	s, _ := NewFileStorage("", logger)
	return s
}

func NewFileStorage(dir string, logger internal.Logger) (*FileStorage, error) {
	s := &FileStorage{
		users:      make(map[string]*internal.User),
		emailIndex: make(map[string]string),
		habits:     make(map[string]*internal.Habit),
		habitLogs:  make(map[string]*internal.HabitLog),
		dir:        dir,
		saveChan:   make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		saveDelay:  500 * time.Millisecond,
		logger:     logger,
		now:        time.Now,
	}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Errorf("storage: failed to create data dir: %v", err)
		return nil, err
	}
	if err := s.load(); err != nil {
		logger.Errorf("storage: failed to load data: %v", err)
		return nil, err
	}

	go s.saveWorker()

	return s, nil
}

func logKey(userID, habitID string) string { return userID + "/" + habitID }

func readJSONFile(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func (s *FileStorage) load() error {
	var users []*internal.User
	var habits []*internal.Habit
	var logs []*internal.HabitLog
	if err := readJSONFile(filepath.Join(s.dir, usersFile), &users); err != nil {
		return err
	}
	if err := readJSONFile(filepath.Join(s.dir, habitsFile), &habits); err != nil {
		return err
	}
	if err := readJSONFile(filepath.Join(s.dir, habitLogsFile), &logs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
		s.emailIndex[u.Email] = u.ID
	}
	for _, h := range habits {
		s.habits[h.ID] = h
	}
	for _, l := range logs {
		s.habitLogs[logKey(l.UserID, l.HabitID)] = l
	}
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) save() error {
	s.mu.RLock()
	users := make([]*internal.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, cloneUser(u))
	}
	habits := make([]*internal.Habit, 0, len(s.habits))
	for _, h := range s.habits {
		c := *h
		habits = append(habits, &c)
	}
	logs := make([]*internal.HabitLog, 0, len(s.habitLogs))
	for _, l := range s.habitLogs {
		logs = append(logs, cloneHabitLog(l))
	}
	s.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	sort.Slice(habits, func(i, j int) bool { return habits[i].CreatedAt.Before(habits[j].CreatedAt) })
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })

	if err := atomicWriteFileJSON(filepath.Join(s.dir, usersFile), users); err != nil {
		return err
	}
	if err := atomicWriteFileJSON(filepath.Join(s.dir, habitsFile), habits); err != nil {
		return err
	}
	return atomicWriteFileJSON(filepath.Join(s.dir, habitLogsFile), logs)
}

// saveWorker batches save operations to avoid frequent disk writes
func (s *FileStorage) saveWorker() {
	defer close(s.done)
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.saveChan:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := s.save(); err != nil {
				s.logger.Errorf("storage: error saving data: %v", err)
			}
		case <-s.shutdown:
			return
		}
	}
}

// markDirty signals the save worker without blocking. Callers hold s.mu.
func (s *FileStorage) markDirty() {
	if s.dir == "" {
		return
	}
	select {
	case s.saveChan <- struct{}{}:
	default:
	}
}

// Close stops the save worker, waits for an in-flight save to finish and
// then flushes pending data synchronously.
func (s *FileStorage) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdown)
		if s.dir == "" {
			return
		}
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		err = s.save()
	})
	return err
}

func cloneUser(u *internal.User) *internal.User {
	c := *u
	c.Habits = append([]internal.FollowedHabit(nil), u.Habits...)
	return &c
}

func cloneHabitLog(l *internal.HabitLog) *internal.HabitLog {
	c := *l
	c.Logs = append([]internal.LogEntry(nil), l.Logs...)
	return &c
}

// --- UserRepository ---
func (s *FileStorage) CreateUser(ctx context.Context, user *internal.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emailIndex[user.Email]; taken {
		return internal.ErrConflict
	}
	s.users[user.ID] = cloneUser(user)
	s.emailIndex[user.Email] = user.ID
	s.markDirty()
	return nil
}

func (s *FileStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *FileStorage) GetUserByEmail(ctx context.Context, email string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[email]
	if !ok {
		return nil, internal.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *FileStorage) UpdateUser(ctx context.Context, id string, patch internal.UserPatch) (*internal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	if patch.Email != nil && *patch.Email != u.Email {
		if _, taken := s.emailIndex[*patch.Email]; taken {
			return nil, internal.ErrConflict
		}
		delete(s.emailIndex, u.Email)
		s.emailIndex[*patch.Email] = id
		u.Email = *patch.Email
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	u.UpdatedAt = s.now()
	s.markDirty()
	return cloneUser(u), nil
}

func (s *FileStorage) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return internal.ErrNotFound
	}
	delete(s.emailIndex, u.Email)
	delete(s.users, id)
	s.markDirty()
	return nil
}

func (s *FileStorage) FollowNewHabit(ctx context.Context, userID string, habit *internal.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return internal.ErrNotFound
	}
	for _, f := range u.Habits {
		if h, ok := s.habits[f.HabitID]; ok && h.Name == habit.Name {
			return internal.ErrConflict
		}
	}
	c := *habit
	s.habits[habit.ID] = &c
	u.Habits = append(u.Habits, internal.FollowedHabit{HabitID: habit.ID, IsActive: true})
	u.UpdatedAt = s.now()
	s.markDirty()
	return nil
}

func (s *FileStorage) UnfollowHabit(ctx context.Context, userID, habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return internal.ErrNotFound
	}
	for i, f := range u.Habits {
		if f.HabitID == habitID {
			u.Habits = append(u.Habits[:i:i], u.Habits[i+1:]...)
			u.UpdatedAt = s.now()
			s.markDirty()
			return nil
		}
	}
	return internal.ErrNotFound
}

func (s *FileStorage) SetHabitActive(ctx context.Context, userID, habitID string, active bool) (*internal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, internal.ErrNotFound
	}
	for i := range u.Habits {
		if u.Habits[i].HabitID == habitID {
			u.Habits[i].IsActive = active
			u.UpdatedAt = s.now()
			s.markDirty()
			return cloneUser(u), nil
		}
	}
	return nil, internal.ErrNotFound
}

// --- HabitRepository ---
func (s *FileStorage) GetHabit(ctx context.Context, id string) (*internal.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.habits[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	c := *h
	return &c, nil
}

func (s *FileStorage) GetHabits(ctx context.Context, ids []string) ([]internal.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	habits := make([]internal.Habit, 0, len(ids))
	for _, id := range ids {
		if h, ok := s.habits[id]; ok {
			habits = append(habits, *h)
		}
	}
	return habits, nil
}

func (s *FileStorage) UpdateHabit(ctx context.Context, id string, patch internal.HabitPatch) (*internal.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[id]
	if !ok {
		return nil, internal.ErrNotFound
	}
	if patch.Name != nil {
		h.Name = *patch.Name
	}
	if patch.Description != nil {
		h.Description = *patch.Description
	}
	if patch.DefaultScore != nil {
		h.DefaultScore = *patch.DefaultScore
	}
	if patch.IsMandatory != nil {
		h.IsMandatory = *patch.IsMandatory
	}
	h.UpdatedAt = s.now()
	s.markDirty()
	c := *h
	return &c, nil
}

// --- HabitLogRepository ---
func (s *FileStorage) GetHabitLog(ctx context.Context, userID, habitID string) (*internal.HabitLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.habitLogs[logKey(userID, habitID)]
	if !ok {
		return nil, internal.ErrNotFound
	}
	return cloneHabitLog(l), nil
}

func (s *FileStorage) UpsertLogEntry(ctx context.Context, userID, habitID string, entry internal.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	key := logKey(userID, habitID)
	l, ok := s.habitLogs[key]
	if !ok {
		l = &internal.HabitLog{
			ID:        uuid.NewString(),
			UserID:    userID,
			HabitID:   habitID,
			CreatedAt: now,
		}
		s.habitLogs[key] = l
	}
	l.UpdatedAt = now
	for i := range l.Logs {
		if l.Logs[i].TargetCompletionAt.Equal(entry.TargetCompletionAt) {
			l.Logs[i].IsCompleted = entry.IsCompleted
			s.markDirty()
			return nil
		}
	}
	l.Logs = append(l.Logs, entry)
	s.markDirty()
	return nil
}

func (s *FileStorage) DeleteUserHabitLogs(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, l := range s.habitLogs {
		if l.UserID == userID {
			delete(s.habitLogs, key)
		}
	}
	s.markDirty()
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*FileStorage)(nil)
