package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/Efasquel/tracker/internal"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

type PostgresStorage struct {
	pool   pgxPool
	logger internal.Logger
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

func newPostgresStorage(pool pgxPool, logger internal.Logger) *PostgresStorage {
	return &PostgresStorage{pool: pool, logger: logger}
}

// NewPostgresStorage connects to dsn and brings the schema up to date.
func NewPostgresStorage(ctx context.Context, dsn string, logger internal.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Errorf("failed to ping postgres: %v", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := RunMigrations(ctx, db); err != nil {
		pool.Close()
		logger.Errorf("failed to apply migrations: %v", err)
		return nil, err
	}
	return newPostgresStorage(pool, logger), nil
}

func (p *PostgresStorage) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// --- UserRepository ---
const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

func scanUser(row pgx.Row) (*internal.User, error) {
	var u internal.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, internal.ErrNotFound
		}
		return nil, err
	}
	u.Role = internal.Role(role)
	return &u, nil
}

func (p *PostgresStorage) followedHabits(ctx context.Context, q querier, userID string) ([]internal.FollowedHabit, error) {
	rows, err := q.Query(ctx, `SELECT habit_id, is_active FROM user_habits WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []internal.FollowedHabit
	for rows.Next() {
		var f internal.FollowedHabit
		if err := rows.Scan(&f.HabitID, &f.IsActive); err != nil {
			return nil, err
		}
		habits = append(habits, f)
	}
	return habits, rows.Err()
}

func (p *PostgresStorage) loadUser(ctx context.Context, q querier, where string, arg any) (*internal.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg))
	if err != nil {
		if !errors.Is(err, internal.ErrNotFound) {
			p.logger.Errorf("failed to query user: %v", err)
		}
		return nil, err
	}
	if u.Habits, err = p.followedHabits(ctx, q, u.ID); err != nil {
		p.logger.Errorf("failed to query followed habits: %v", err)
		return nil, err
	}
	return u, nil
}

func (p *PostgresStorage) CreateUser(ctx context.Context, user *internal.User) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.PasswordHash, user.Name, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return internal.ErrConflict
		}
		p.logger.Errorf("failed to insert user: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	return p.loadUser(ctx, p.pool, "id", id)
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*internal.User, error) {
	return p.loadUser(ctx, p.pool, "email", email)
}

func (p *PostgresStorage) UpdateUser(ctx context.Context, id string, patch internal.UserPatch) (*internal.User, error) {
	var role *string
	if patch.Role != nil {
		r := string(*patch.Role)
		role = &r
	}
	tag, err := p.pool.Exec(ctx, `UPDATE users SET
		email = COALESCE($2, email),
		name = COALESCE($3, name),
		role = COALESCE($4, role),
		updated_at = now()
		WHERE id = $1`, id, patch.Email, patch.Name, role)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, internal.ErrConflict
		}
		p.logger.Errorf("failed to update user: %v", err)
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, internal.ErrNotFound
	}
	return p.GetUser(ctx, id)
}

func (p *PostgresStorage) DeleteUser(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		p.logger.Errorf("failed to delete user: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) FollowNewHabit(ctx context.Context, userID string, habit *internal.Habit) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		p.logger.Errorf("failed to begin transaction: %v", err)
		return err
	}
	if err = followNewHabit(ctx, tx, userID, habit); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Errorf("failed to roll back follow: %v", rbErr)
		}
	} else {
		err = tx.Commit(ctx)
	}
	if err != nil && !errors.Is(err, internal.ErrNotFound) && !errors.Is(err, internal.ErrConflict) {
		p.logger.Errorf("failed to follow habit: %v", err)
	}
	return err
}

// followNewHabit locks the user row so two requests cannot both pass the
// name check for the same user.
func followNewHabit(ctx context.Context, tx pgx.Tx, userID string, habit *internal.Habit) error {
	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return internal.ErrNotFound
		}
		return err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM user_habits uh JOIN habits h ON h.id = uh.habit_id
		WHERE uh.user_id = $1 AND h.name = $2)`, userID, habit.Name).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return internal.ErrConflict
	}

	if _, err := tx.Exec(ctx, `INSERT INTO habits (id, name, description, default_score, is_mandatory, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		habit.ID, habit.Name, habit.Description, habit.DefaultScore, habit.IsMandatory, habit.CreatedBy, habit.CreatedAt, habit.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO user_habits (user_id, habit_id, is_active) VALUES ($1, $2, TRUE)`, userID, habit.ID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `UPDATE users SET updated_at = now() WHERE id = $1`, userID)
	return err
}

func (p *PostgresStorage) UnfollowHabit(ctx context.Context, userID, habitID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM user_habits WHERE user_id = $1 AND habit_id = $2`, userID, habitID)
	if err != nil {
		p.logger.Errorf("failed to unfollow habit: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) SetHabitActive(ctx context.Context, userID, habitID string, active bool) (*internal.User, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE user_habits SET is_active = $3 WHERE user_id = $1 AND habit_id = $2`, userID, habitID, active)
	if err != nil {
		p.logger.Errorf("failed to update followed habit: %v", err)
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, internal.ErrNotFound
	}
	return p.GetUser(ctx, userID)
}

// --- HabitRepository ---
const habitColumns = `id, name, description, default_score, is_mandatory, created_by, created_at, updated_at`

func scanHabit(row pgx.Row) (*internal.Habit, error) {
	var h internal.Habit
	if err := row.Scan(&h.ID, &h.Name, &h.Description, &h.DefaultScore, &h.IsMandatory, &h.CreatedBy, &h.CreatedAt, &h.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, internal.ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (p *PostgresStorage) GetHabit(ctx context.Context, id string) (*internal.Habit, error) {
	h, err := scanHabit(p.pool.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = $1`, id))
	if err != nil && !errors.Is(err, internal.ErrNotFound) {
		p.logger.Errorf("failed to query habit: %v", err)
	}
	return h, err
}

func (p *PostgresStorage) GetHabits(ctx context.Context, ids []string) ([]internal.Habit, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ANY($1)`, ids)
	if err != nil {
		p.logger.Errorf("failed to query habits: %v", err)
		return nil, err
	}
	defer rows.Close()

	habits := make([]internal.Habit, 0, len(ids))
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			p.logger.Errorf("failed to scan habit: %v", err)
			return nil, err
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

func (p *PostgresStorage) UpdateHabit(ctx context.Context, id string, patch internal.HabitPatch) (*internal.Habit, error) {
	h, err := scanHabit(p.pool.QueryRow(ctx, `UPDATE habits SET
		name = COALESCE($2, name),
		description = COALESCE($3, description),
		default_score = COALESCE($4, default_score),
		is_mandatory = COALESCE($5, is_mandatory),
		updated_at = now()
		WHERE id = $1
		RETURNING `+habitColumns, id, patch.Name, patch.Description, patch.DefaultScore, patch.IsMandatory))
	if err != nil && !errors.Is(err, internal.ErrNotFound) {
		p.logger.Errorf("failed to update habit: %v", err)
	}
	return h, err
}

// --- HabitLogRepository ---
func (p *PostgresStorage) GetHabitLog(ctx context.Context, userID, habitID string) (*internal.HabitLog, error) {
	var l internal.HabitLog
	err := p.pool.QueryRow(ctx, `SELECT id, user_id, habit_id, created_at, updated_at FROM habit_logs WHERE user_id = $1 AND habit_id = $2`,
		userID, habitID).Scan(&l.ID, &l.UserID, &l.HabitID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, internal.ErrNotFound
		}
		p.logger.Errorf("failed to query habit log: %v", err)
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `SELECT target_date, is_completed FROM habit_log_entries WHERE habit_log_id = $1 ORDER BY position`, l.ID)
	if err != nil {
		p.logger.Errorf("failed to query habit log entries: %v", err)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e internal.LogEntry
		if err := rows.Scan(&e.TargetCompletionAt, &e.IsCompleted); err != nil {
			p.logger.Errorf("failed to scan habit log entry: %v", err)
			return nil, err
		}
		e.TargetCompletionAt = internal.TruncateToDate(e.TargetCompletionAt)
		l.Logs = append(l.Logs, e)
	}
	return &l, rows.Err()
}

// UpsertLogEntry creates the log row and writes the day's entry in a single
// statement, so concurrent calls for the same day converge on one entry.
func (p *PostgresStorage) UpsertLogEntry(ctx context.Context, userID, habitID string, entry internal.LogEntry) error {
	_, err := p.pool.Exec(ctx, `
		WITH log AS (
			INSERT INTO habit_logs (id, user_id, habit_id) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, habit_id) DO UPDATE SET updated_at = now()
			RETURNING id
		)
		INSERT INTO habit_log_entries (habit_log_id, target_date, is_completed)
		SELECT id, $4::date, $5::boolean FROM log
		ON CONFLICT (habit_log_id, target_date) DO UPDATE SET is_completed = EXCLUDED.is_completed`,
		uuid.NewString(), userID, habitID, entry.TargetCompletionAt, entry.IsCompleted)
	if err != nil {
		p.logger.Errorf("failed to upsert habit log entry: %v", err)
		return fmt.Errorf("upsert habit log: %w", err)
	}
	return nil
}

func (p *PostgresStorage) DeleteUserHabitLogs(ctx context.Context, userID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM habit_logs WHERE user_id = $1`, userID); err != nil {
		p.logger.Errorf("failed to delete habit logs: %v", err)
		return err
	}
	return nil
}

// --- Compile-time assertions ---
var (
	_ Store   = (*PostgresStorage)(nil)
	_ pgxPool = (*pgxpool.Pool)(nil)
)
