package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/user"
)

const (
	usersTable        = "users"
	usersEmailKey     = "users_email_key"
	usersDefaultOrder = "created_at DESC"
)

var userColumns = []string{
	"id", "first_name", "last_name", "email", "password_hash", "role", "department", "position", "is_active",
	"current_streak", "longest_streak", "last_activity_date", "last_login", "created_at", "updated_at",
}

type userRow struct {
	ID               string    `db:"id"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	Email            string    `db:"email"`
	PasswordHash     []byte    `db:"password_hash"`
	Role             string    `db:"role"`
	Department       string    `db:"department"`
	Position         string    `db:"position"`
	IsActive         bool      `db:"is_active"`
	CurrentStreak    int       `db:"current_streak"`
	LongestStreak    int       `db:"longest_streak"`
	LastActivityDate null.Time `db:"last_activity_date"`
	LastLogin        null.Time `db:"last_login"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:               usr.ID,
		FirstName:        usr.FirstName,
		LastName:         usr.LastName,
		Email:            usr.Email,
		PasswordHash:     usr.PasswordHash,
		Role:             usr.Role,
		Department:       usr.Department,
		Position:         usr.Position,
		IsActive:         usr.IsActive,
		CurrentStreak:    usr.Stats.Current,
		LongestStreak:    usr.Stats.Longest,
		LastActivityDate: null.TimeFromPtr(usr.Stats.LastActivityDate),
		LastLogin:        null.TimeFromPtr(usr.LastLogin),
		CreatedAt:        usr.CreatedAt.UTC(),
		UpdatedAt:        usr.UpdatedAt.UTC(),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:         row.ID,
		FirstName:  row.FirstName,
		LastName:   row.LastName,
		Email:      row.Email,
		Role:       row.Role,
		Department: row.Department,
		Position:   row.Position,
		IsActive:   row.IsActive,
		Stats: core.Streak{
			Current:          row.CurrentStreak,
			Longest:          row.LongestStreak,
			LastActivityDate: utcPtr(row.LastActivityDate),
		},
		PasswordHash: row.PasswordHash,
		LastLogin:    utcPtr(row.LastLogin),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

func (repo userRepository) values(row userRow) map[string]interface{} {
	return map[string]interface{}{
		"id":                 row.ID,
		"first_name":         row.FirstName,
		"last_name":          row.LastName,
		"email":              row.Email,
		"password_hash":      row.PasswordHash,
		"role":               row.Role,
		"department":         row.Department,
		"position":           row.Position,
		"is_active":          row.IsActive,
		"current_streak":     row.CurrentStreak,
		"longest_streak":     row.LongestStreak,
		"last_activity_date": row.LastActivityDate,
		"last_login":         row.LastLogin,
		"created_at":         row.CreatedAt,
		"updated_at":         row.UpdatedAt,
	}
}

// trapErr maps "no rows" to user.ErrNotFound and the email constraint to user.ErrEmailExists
func (repo userRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if isUniqueViolation(err, usersEmailKey) {
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	b := psql.Select("1").From(usersTable).Where(sq.Eq{"email": email}).Limit(1)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		b = b.Where(sq.NotEq{"id": ids})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building user uniqueness query")
	}
	var found int
	if err = repo.exec.GetContext(ctx, &found, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	row := repo.toRow(usr)

	query, args, err := psql.Insert(usersTable).SetMap(repo.values(row)).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user insert")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) filter(b sq.SelectBuilder, filter user.QueryFilter) sq.SelectBuilder {
	// users with first name, last name or email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"first_name": val},
			sq.ILike{"last_name": val},
			sq.ILike{"email": val},
		})
	}
	if filter.Department != "" {
		b = b.Where(sq.ILike{"department": filter.Department})
	}
	if filter.Role != "" {
		b = b.Where(sq.Eq{"role": filter.Role})
	}
	if isActive := filter.IsActive(); isActive != nil {
		b = b.Where(sq.Eq{"is_active": *isActive})
	}
	return b
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]user.User, int, error) {
	total, err := count(ctx, repo.exec, repo.filter(psql.Select("COUNT(*)").From(usersTable), filter))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	b := repo.filter(psql.Select(userColumns...).From(usersTable), filter)
	b = paginate(orderBy(b, ordering, usersDefaultOrder), page)
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "building users query")
	}

	var rows []userRow
	if err = repo.exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, total, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	b := psql.Select(userColumns...).From(usersTable)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		b = b.Where(sq.Eq{"email": filter.Email})
	default:
		return user.User{}, user.ErrNotFound
	}

	query, args, err := b.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user query")
	}
	var row userRow
	if err = repo.exec.GetContext(ctx, &row, query, args...); err != nil {
		return user.User{}, repo.trapErr(err, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.toRow(usr)
	values := repo.values(row)
	delete(values, "id")
	delete(values, "created_at")

	query, args, err := psql.Update(usersTable).SetMap(values).Where(sq.Eq{"id": usr.ID}).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building user update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	if n, err := affected(res); err != nil {
		return user.User{}, err
	} else if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
