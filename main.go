package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/openfield/canvass/app"
	"github.com/openfield/canvass/civicrm"
	"github.com/openfield/canvass/config"
	"github.com/openfield/canvass/database"
	"github.com/openfield/canvass/log"
	"github.com/openfield/canvass/routes"
	"github.com/openfield/canvass/store"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	if !cfg.CRM.Configured() {
		log.Warn("CiviCRM credentials not fully configured; syncs will fail until they are set")
	}

	st := store.New(db)
	crm := civicrm.NewClient(cfg.CRM)

	app := app.App{
		Store:  st,
		CRM:    crm,
		Sync:   civicrm.NewSyncer(crm, st),
		Config: cfg,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
