package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/user"
)

var errUnknownRole = errors.New("unknown role")

// addUser updates or creates an active user.User holding role.
func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if user.RolePriority(role) == 0 {
		return errUnknownRole
	}

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: lookup})
	isNew := errors.Cause(err) == user.ErrNotFound
	if err != nil && !isNew {
		return err
	}

	now := time.Now().UTC()
	if isNew {
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	} else if usr.Name == "" {
		usr.Name = usr.Username
	}
	if !usr.RoleStartsWith(role) {
		usr.Roles = append(usr.Roles, role)
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	if isNew {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
