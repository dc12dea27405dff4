// Package app runs chaind: it opens the database, brings the consensus
// engine up to its best chain, and keeps it running until interrupted.
package app

import (
	"fmt"
	"os"

	"github.com/utxonode/chaind/infrastructure/config"
	"github.com/utxonode/chaind/infrastructure/db/database"
	"github.com/utxonode/chaind/infrastructure/db/drivers"
	"github.com/utxonode/chaind/infrastructure/logger"
	"github.com/utxonode/chaind/infrastructure/os/execenv"
	"github.com/utxonode/chaind/infrastructure/os/signal"
	"github.com/utxonode/chaind/util/panics"
	"github.com/utxonode/chaind/version"
)

type chaindApp struct {
	cfg *config.Config
}

// StartApp starts the chaind app, and blocks until it finishes running
func StartApp() error {
	execenv.Initialize()

	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logger.BackendLog.Close()
	defer panics.HandlePanic(log, "MAIN", nil)

	app := &chaindApp{cfg: cfg}
	return app.main(nil)
}

func (app *chaindApp) main(startedChan chan<- struct{}) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the RPC server.
	interrupt := signal.InterruptListener()
	defer log.Info("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())

	// Open the database
	db, err := openDB(app.cfg)
	if err != nil {
		log.Errorf("Loading database failed: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the database...")
		err := db.Close()
		if err != nil {
			log.Errorf("Failed to close the database: %s", err)
		}
	}()

	// Create componentManager and start it.
	componentManager, err := NewComponentManager(app.cfg, db, interrupt)
	if err != nil {
		log.Errorf("Unable to start chaind: %+v", err)
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down chaind...")
		componentManager.Stop()
	}()

	componentManager.Start()

	if startedChan != nil {
		startedChan <- struct{}{}
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems such as the RPC
	// server.
	<-interrupt
	return nil
}

func openDB(cfg *config.Config) (database.Database, error) {
	dbPath := cfg.DatabasePath()
	err := os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		return nil, err
	}
	err = checkDatabaseVersion(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	log.Infof("Loading %s database from '%s'", cfg.DbType, dbPath)
	db, err := drivers.Open(cfg.DbType, dbPath, cfg.DbCacheSizeMiB)
	if err != nil {
		return nil, err
	}
	err = writeDatabaseVersion(cfg.DataDir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
