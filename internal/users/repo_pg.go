package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mukkaboot-ai/auth-service/internal/platform/httpx"
)

const userColumns = "id, username, email, password_hash, role, active, verified, last_login, created_at, updated_at"

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, "username = $1", username)
}

func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "lower(email) = lower($1)", email)
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *PGRepository) findOne(ctx context.Context, where string, arg any) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s", userColumns, where)
	row := r.pool.QueryRow(ctx, query, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		return nil, fmt.Errorf("users: find: %w", err)
	}
	return user, nil
}

func (r *PGRepository) Create(ctx context.Context, user *User) (*User, error) {
	const query = `
		INSERT INTO users (id, username, email, password_hash, role, active, verified, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Role,
		user.Active, user.Verified, toTimestamptz(user.LastLogin),
		user.CreatedAt, user.UpdatedAt,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("users: create: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Update(ctx context.Context, id string, fields UpdateFields) (*User, error) {
	set := "updated_at = now()"
	args := []any{id}
	pos := 2

	add := func(column string, value any) {
		set += fmt.Sprintf(", %s = $%d", column, pos)
		args = append(args, value)
		pos++
	}

	if fields.Username != nil {
		add("username", *fields.Username)
	}
	if fields.Email != nil {
		add("email", *fields.Email)
	}
	if fields.PasswordHash != nil {
		add("password_hash", *fields.PasswordHash)
	}
	if fields.Role != nil {
		add("role", *fields.Role)
	}
	if fields.Active != nil {
		add("active", *fields.Active)
	}
	if fields.Verified != nil {
		add("verified", *fields.Verified)
	}
	if fields.LastLogin != nil {
		add("last_login", *fields.LastLogin)
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1 RETURNING %s", set, userColumns)
	row := r.pool.QueryRow(ctx, query, args...)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpx.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, httpx.ErrDuplicate
		}
		return nil, fmt.Errorf("users: update: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("users: delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter, page Page) ([]User, error) {
	where, args := buildFilter(filter)
	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"SELECT %s FROM users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		userColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, page.Skip)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: list scan: %w", err)
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *PGRepository) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := buildFilter(filter)
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM users "+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return total, nil
}

func buildFilter(filter ListFilter) (string, []any) {
	where := ""
	var args []any
	appendCond := func(cond string, value any) {
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, value)
	}
	if filter.Role != nil {
		appendCond(fmt.Sprintf("role = $%d", len(args)+1), *filter.Role)
	}
	if filter.Active != nil {
		appendCond(fmt.Sprintf("active = $%d", len(args)+1), *filter.Active)
	}
	return where, args
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var lastLogin pgtype.Timestamptz
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.Active, &u.Verified, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
