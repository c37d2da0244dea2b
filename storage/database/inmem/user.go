package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/user"
)

var userOrderings = map[string]lessFunc[user.User]{
	"first_name": func(a, b user.User) int { return compareStrings(a.FirstName, b.FirstName) },
	"last_name":  func(a, b user.User) int { return compareStrings(a.LastName, b.LastName) },
	"email":      func(a, b user.User) int { return compareStrings(a.Email, b.Email) },
	"department": func(a, b user.User) int { return compareStrings(a.Department, b.Department) },
	"role":       func(a, b user.User) int { return compareStrings(a.Role, b.Role) },
	"is_active":  func(a, b user.User) int { return compareBools(a.IsActive, b.IsActive) },
	"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"last_login": func(a, b user.User) int {
		switch {
		case a.LastLogin == nil && b.LastLogin == nil:
			return 0
		case a.LastLogin == nil:
			return -1
		case b.LastLogin == nil:
			return 1
		}
		return a.LastLogin.Compare(*b.LastLogin)
	},
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.user.table))
	for _, u := range repo.db.user.table {
		users = append(users, *u)
	}
	return users
}

// emailTaken must be called with the table lock held.
func (repo *userRepository) emailTaken(email string, excludedUsers ...user.User) bool {
	for _, usr := range repo.db.user.table {
		if usr.Email == email && !isExcluded(*usr, excludedUsers) {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers ...user.User) error {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	if repo.emailTaken(email, excludedUsers...) {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	if repo.emailTaken(usr.Email) {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = uuid.NewString()
	repo.db.user.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]user.User, int, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	isActive := filter.IsActive()
	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Search != "" &&
			!containsFold(usr.FirstName, filter.Search) &&
			!containsFold(usr.LastName, filter.Search) &&
			!containsFold(usr.Email, filter.Search) {
			continue
		}
		if filter.Department != "" && !strings.EqualFold(usr.Department, filter.Department) {
			continue
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if isActive != nil && usr.IsActive != *isActive {
			continue
		}
		users = append(users, usr)
	}

	sortRows(users, ordering, userOrderings, core.DBOrdering{Field: "created_at"})
	return paginate(users, page), len(users), nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.user.RLock()
	defer repo.db.user.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.user.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.user.table {
			if usr.Email == filter.Email {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.user.Lock()
	defer repo.db.user.Unlock()

	origUsr, ok := repo.db.user.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Email != origUsr.Email && repo.emailTaken(usr.Email, usr) {
		return user.User{}, user.ErrEmailExists
	}
	usr.CreatedAt = origUsr.CreatedAt
	repo.db.user.table[usr.ID] = &usr
	return usr, nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if excl.ID == usr.ID {
			return true
		}
	}
	return false
}
