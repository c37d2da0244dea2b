package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/user"
	appfs "github.com/oasis-elearning/oasis/fs"
	emailsvc "github.com/oasis-elearning/oasis/services/email"
	logsvc "github.com/oasis-elearning/oasis/services/logger"
	"github.com/oasis-elearning/oasis/storage/database"
	inmemdb "github.com/oasis-elearning/oasis/storage/database/inmem"
	sqlxrepos "github.com/oasis-elearning/oasis/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code.
func run() int {
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		stdLogger.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, logger)

	cl := commandLine{
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}

	if conf.Database.Engine == "memory" {
		logger.Warn("using the in-memory store: changes are lost when the command exits")
		cl.usrRepo = inmemdb.NewUserRepository(inmemdb.Open())
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		cl.db = db.DB
		cl.usrRepo = sqlxrepos.NewUserRepository(db)
	}
	cl.usrSvc = user.NewService(cl.usrRepo, emailsvc.NewConsoleService(conf, logger))

	defer logger.Close()

	// start CLI
	if err := cl.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		return 1
	}
	return 0
}
