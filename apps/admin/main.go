package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/storage/database"
	mongorepos "github.com/trezcool/matokeo/storage/database/mongo"
	sqlxrepos "github.com/trezcool/matokeo/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	var cli commandLine
	switch conf.Database.Engine {
	case core.EngineMongo:
		client, db, err := mongorepos.Connect(conf)
		errAndDie(err)
		defer func() { _ = mongorepos.Disconnect(client) }()
		errAndDie(mongorepos.EnsureIndexes(context.Background(), db))
		cli.usrRepo = mongorepos.NewUserRepository(db)
	case core.EnginePostgres, core.EngineSQLite:
		errAndDie(database.CreateIfNotExist(conf))
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		errAndDie(database.Ping(db))
		cli.db = db
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
	default:
		logger.Fatalf("the admin CLI cannot manage %q storage", conf.Database.Engine)
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
