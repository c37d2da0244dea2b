package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/oasis-elearning/oasis/apps/api/echo"
	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/token"
	"github.com/oasis-elearning/oasis/core/user"
	emailsvc "github.com/oasis-elearning/oasis/services/email"
	logsvc "github.com/oasis-elearning/oasis/services/logger"
	"github.com/oasis-elearning/oasis/storage/database"
	inmemdb "github.com/oasis-elearning/oasis/storage/database/inmem"
	sqlxrepos "github.com/oasis-elearning/oasis/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBCloser releases the storage connection; a no-op for the memory engine.
type DBCloser func() error

// Repositories is produced by the configured storage engine.
type Repositories struct {
	dig.Out

	Users    user.Repository
	Courses  course.Repository
	Progress progress.Repository
	Close    DBCloser
}

type serverParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	Tokens      *token.Issuer
	UserSvc     *user.Service
	CourseSvc   *course.Service
	ProgressSvc *progress.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
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

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == "memory" {
		loggerParam.Logger.Warn("using the in-memory store: data is lost on restart")
		db := inmemdb.Open()
		return Repositories{
			Users:    inmemdb.NewUserRepository(db),
			Courses:  inmemdb.NewCourseRepository(db),
			Progress: inmemdb.NewProgressRepository(db),
			Close:    func() error { return nil },
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	return Repositories{
		Users:    sqlxrepos.NewUserRepository(db),
		Courses:  sqlxrepos.NewCourseRepository(db),
		Progress: sqlxrepos.NewProgressRepository(db),
		Close:    db.Close,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() *validator.Validate {
	return validator.New()
}

func newTokenIssuer(conf *core.Config) (*token.Issuer, error) {
	return token.NewIssuer(conf.SecretKey, conf.AppName, conf.Server.JWTExpirationDelta)
}

func newCertificateSigner(conf *core.Config) *progress.CertificateSigner {
	return progress.NewCertificateSigner(conf.SecretKey, conf.Certificate.BaseURL)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(nil, &echoapi.Deps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		Tokens:      p.Tokens,
		UserSvc:     p.UserSvc,
		CourseSvc:   p.CourseSvc,
		ProgressSvc: p.ProgressSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newTokenIssuer))
	must(c.Provide(newCertificateSigner))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(progress.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
