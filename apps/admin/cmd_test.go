package main

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/matokeo/core/user"
	"github.com/trezcool/matokeo/storage/database/inmem"
	"github.com/trezcool/matokeo/storage/database/sqlx"
	"github.com/trezcool/matokeo/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo = sqlxrepos.NewUserRepository(db)

	// start CLI
	return &commandLine{
		db:      db,
		usrRepo: usrRepo,
	}
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
	extra   interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var gotCmd string
	var gotArgs []string
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		gotCmd, gotArgs = command, args
		return nil
	}

	tests := []struct {
		name     string
		args     []string
		wantErr  error
		wantCmd  string
		wantArgs []string
	}{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "up", args: []string{"migrate", "up"}, wantCmd: "up"},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}, wantCmd: "up-to", wantArgs: []string{"2"}},
		{name: "status", args: []string{"migrate", "status"}, wantCmd: "status"},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}, wantCmd: "create", wantArgs: []string{"course", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCmd, gotArgs = "", nil
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, gotCmd)
			assert.Equal(t, len(tt.wantArgs), len(gotArgs))
			if len(tt.wantArgs) > 0 {
				assert.Equal(t, tt.wantArgs, gotArgs)
			}
		})
	}

	t.Run("not a SQL database", func(t *testing.T) {
		noSQL := &commandLine{usrRepo: inmemdb.NewUserRepository(inmemdb.Open())}
		assert.Equal(t, errNotSQL, noSQL.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	existing := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "old", []string{user.RoleFaculty}, false)

	tests := []struct {
		name      string
		args      []string
		pwd       string
		wantErr   error
		wantUname string
		wantRoles []string
	}{
		{name: "no args", args: []string{"adduser"}, pwd: "x", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "admin"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-username", "admin", "-role", "lol"}, pwd: "x", wantErr: errUnknownRole},
		{
			name: "new admin", args: []string{"adduser", "-username", "Admin", "-email", "admin@test.cd"}, pwd: "x",
			wantUname: "admin", wantRoles: []string{user.RoleAdmin},
		},
		{
			name: "new registrar by email", args: []string{"adduser", "-email", "reg@test.cd", "-name", "Reg", "-role", user.RoleAdminRegistrar}, pwd: "x",
			wantUname: "reg@test.cd", wantRoles: []string{user.RoleAdminRegistrar},
		},
		{
			name: "existing user gets the role", args: []string{"adduser", "-username", "teacher"}, pwd: "x",
			wantUname: "teacher", wantRoles: []string{user.RoleFaculty, user.RoleAdmin},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			usr, err := usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: tt.wantUname})
			require.NoError(t, err)
			assert.True(t, usr.IsActive)
			assert.ElementsMatch(t, tt.wantRoles, usr.Roles)
			assert.NoError(t, usr.CheckPassword(tt.pwd))
		})
	}

	usr, err := usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "Teacher", usr.Name)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", " AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		pwd := ""
		if extra, ok := tt.extra.(extra); ok {
			pwd = extra.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != nil {
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			if err != nil {
				t.Fatalf("GetUser() failed, %v", err)
			}
			if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
				t.Error("failed to update new password")
			}
			assert.NoError(t, refreshedUsr.CheckPassword(pwd))
		})
	}
}
