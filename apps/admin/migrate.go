package main

import (
	"errors"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/matokeo/storage/database"
)

var (
	gooseRunFunc = goose.Run // mockable

	errNotSQL = errors.New("migrations only apply to SQL databases")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNotSQL
	}
	if err := database.SetupGoose(cli.db); err != nil {
		return err
	}
	return gooseRunFunc(args[0], cli.db.DB, database.MigrationsDir(), args[1:]...)
}
