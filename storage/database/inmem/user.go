package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/user"
)

type userRepository struct {
	db    *userTable
	store *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user, store: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.table {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.New().String()
	usr.Roles = append([]string(nil), usr.Roles...)
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Match(usr) {
			users = append(users, usr)
		}
	}
	if len(ordering) > 0 {
		get := func(i int, field string) string {
			u := users[i]
			switch field {
			case "name":
				return lower(u.Name)
			case "username":
				return u.Username
			case "email":
				return u.Email
			case "created_at":
				return u.CreatedAt.UTC().Format(time.RFC3339Nano)
			case "last_login":
				return u.LastLogin.UTC().Format(time.RFC3339Nano)
			}
			return ""
		}
		sortStable(len(users), ordering, get, func(i, j int) { users[i], users[j] = users[j], users[i] })
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(u user.User) bool
	switch {
	case filter.Username != "":
		match = func(u user.User) bool { return u.Username == filter.Username }
	case filter.Email != "":
		match = func(u user.User) bool { return u.Email == filter.Email }
	case filter.UsernameOrEmail != "":
		match = func(u user.User) bool {
			return u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail
		}
	default:
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.query() {
		if match(usr) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, errors.Wrap(user.ErrNotFound, "updating user")
	}
	usr.Roles = append([]string(nil), usr.Roles...)
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			deleted[id] = true
		}
	}
	if len(deleted) > 0 {
		repo.store.detachUsers(deleted)
	}
	return len(deleted), nil
}
