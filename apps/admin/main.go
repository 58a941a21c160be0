package main

import (
	"log"
	"os"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/user"
	emailsvc "github.com/triolingo/backend/services/email"
	logsvc "github.com/triolingo/backend/services/logger"
	"github.com/triolingo/backend/storage/database"
	inmemdb "github.com/triolingo/backend/storage/database/inmem"
	sqlxrepos "github.com/triolingo/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		stdLogger.Fatal(err)
	}
	db, err := database.Open(conf)
	if err != nil {
		stdLogger.Fatal(err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		db:     db,
		idSvc:  identity.NewService(sqlxrepos.NewAccountRepository(db), inmemdb.NewRevoker(), mailSvc, conf),
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), inmemdb.NewPresenceStore(conf.Presence.TTL), logger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
