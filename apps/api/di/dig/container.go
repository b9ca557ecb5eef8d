// Package dig_container wires the API's dependencies with go.uber.org/dig.
package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/matokeo/apps/api/echo"
	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/course"
	"github.com/trezcool/matokeo/core/marks"
	"github.com/trezcool/matokeo/core/user"
	emailsvc "github.com/trezcool/matokeo/services/email"
	logsvc "github.com/trezcool/matokeo/services/logger"
	"github.com/trezcool/matokeo/storage/database"
	inmemdb "github.com/trezcool/matokeo/storage/database/inmem"
	mongorepos "github.com/trezcool/matokeo/storage/database/mongo"
	sqlxrepos "github.com/trezcool/matokeo/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// CloseDBFunc releases the storage connections.
type CloseDBFunc func() error

// Storage is the set of repositories of the configured engine.
type Storage struct {
	dig.Out
	Users   user.Repository
	Courses course.Repository
	Marks   marks.Repository
	Close   CloseDBFunc
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	UserSvc    user.ServiceInterface
	CourseSvc  course.ServiceInterface
	MarksSvc   marks.ServiceInterface
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newSQLStorage(conf *core.Config) (Storage, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return Storage{}, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return Storage{}, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	return Storage{
		Users:   sqlxrepos.NewUserRepository(db),
		Courses: sqlxrepos.NewCourseRepository(db),
		Marks:   sqlxrepos.NewMarksRepository(db),
		Close:   db.Close,
	}, nil
}

func newMongoStorage(conf *core.Config) (Storage, error) {
	client, db, err := mongorepos.Connect(conf)
	if err != nil {
		return Storage{}, err
	}
	if err = mongorepos.EnsureIndexes(context.Background(), db); err != nil {
		_ = mongorepos.Disconnect(client)
		return Storage{}, err
	}
	return Storage{
		Users:   mongorepos.NewUserRepository(db),
		Courses: mongorepos.NewCourseRepository(db),
		Marks:   mongorepos.NewMarksRepository(client, db),
		Close:   func() error { return mongorepos.Disconnect(client) },
	}, nil
}

func newMemoryStorage() Storage {
	db := inmemdb.Open()
	return Storage{
		Users:   inmemdb.NewUserRepository(db),
		Courses: inmemdb.NewCourseRepository(db),
		Marks:   inmemdb.NewMarksRepository(db),
		Close:   func() error { return nil },
	}
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	var (
		s   Storage
		err error
	)
	switch conf.Database.Engine {
	case core.EnginePostgres, core.EngineSQLite:
		s, err = newSQLStorage(conf)
	case core.EngineMongo:
		s, err = newMongoStorage(conf)
	case core.EngineMemory:
		s = newMemoryStorage()
	default:
		err = errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	loggerParam.Logger.Info(fmt.Sprintf("using %s storage", conf.Database.Engine))
	return s
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	marks.InitValidators(validate, translator)
	return validate
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		CourseSvc:  p.CourseSvc,
		MarksSvc:   p.MarksSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(course.NewService, dig.As(new(course.ServiceInterface))))
	must(c.Provide(marks.NewService, dig.As(new(marks.ServiceInterface))))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
