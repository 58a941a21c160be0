package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/triolingo/backend/apps/api/echo"
	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/presence"
	"github.com/triolingo/backend/core/progress"
	"github.com/triolingo/backend/core/roulette"
	"github.com/triolingo/backend/core/user"
	emailsvc "github.com/triolingo/backend/services/email"
	logsvc "github.com/triolingo/backend/services/logger"
	"github.com/triolingo/backend/services/scheduler"
	"github.com/triolingo/backend/storage/database"
	inmemdb "github.com/triolingo/backend/storage/database/inmem"
	sqlxrepos "github.com/triolingo/backend/storage/database/sqlx"
	redisstore "github.com/triolingo/backend/storage/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up ephemeral stores
	var (
		presenceStore presence.Store
		revoker       identity.Revoker
	)
	if conf.Redis.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := redisstore.Open(ctx, conf.Redis)
		cancel()
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				dbLogger.Error("Failed to close redis", err)
			}
		}()
		presenceStore = redisstore.NewPresenceStore(client, conf.Presence.TTL)
		revoker = redisstore.NewRevoker(client)
	} else {
		logger.Warn("REDIS_ADDRESS not set: presence and revoked tokens are kept in memory")
		presenceStore = inmemdb.NewPresenceStore(conf.Presence.TTL)
		revoker = inmemdb.NewRevoker()
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	idSvc := identity.NewService(sqlxrepos.NewAccountRepository(db), revoker, mailSvc, conf)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), presenceStore, logger)
	progressSvc := progress.NewService(sqlxrepos.NewProgressRepository(db), usrSvc, logger)
	rouletteSvc := roulette.NewService(sqlxrepos.NewRouletteRepository(db), usrSvc, roulette.CryptoSpinner, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	sched := scheduler.New(usrSvc, logger)
	if err = sched.Start(conf); err != nil {
		logger.Fatal(fmt.Sprintf("starting scheduler: %v", err), err)
	}
	defer sched.Stop()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			IdentitySvc: idSvc,
			UserSvc:     usrSvc,
			ProgressSvc: progressSvc,
			RouletteSvc: rouletteSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
