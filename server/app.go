package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"moneta/config"
	"moneta/internal/authflow"
	"moneta/internal/credstore"
	"moneta/internal/datastore"
	"moneta/internal/db"
	"moneta/internal/enterprise"
	"moneta/internal/guard"
	"moneta/internal/health"
	"moneta/internal/ledger"
	"moneta/internal/logs"
	"moneta/internal/middleware"
	"moneta/internal/models"
	"moneta/internal/session"
	"moneta/internal/tenant"
	"moneta/internal/web"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Router     *mux.Router
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	/* 1) Logs */
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	/* 2) DB */
	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	a.db = d
	if err := a.db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	/* 3) Session store + manager */
	var store session.Store
	switch a.cfg.Session.Store {
	case "redis":
		store = session.NewRedisStore(a.cfg.Session.RedisAddr)
	default:
		store = session.NewMemStore()
	}
	mgr := session.NewManager(store, session.Options{
		CookieName:   a.cfg.Session.CookieName,
		CookieSecure: a.cfg.Session.CookieSecure,
		TTL:          time.Duration(a.cfg.Session.TTLHours) * time.Hour,
	})

	/* 4) Collaborators */
	creds := credstore.New(a.cfg.CredStore.URL, a.cfg.CredStore.APIKey,
		time.Duration(a.cfg.CredStore.TimeoutSeconds)*time.Second)
	profiles := datastore.NewProfileStore(a.db)
	orgs := datastore.NewOrgStore(a.db)
	ledgerStore := datastore.NewLedgerStore(a.db)
	entStore := datastore.NewEntStore(a.db)
	resolver := tenant.NewResolver(orgs)
	renderer := web.NewRenderer()

	lifecycle := guard.New(mgr, profiles, creds,
		time.Duration(a.cfg.Session.TimeoutMinutes)*time.Minute,
		time.Duration(a.cfg.Session.RefreshThreshold)*time.Second)

	/* 5) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
		mgr.Middleware,
		lifecycle.Middleware,
	)

	/* 6) Health + static */
	health.RegisterRoutesWithDB(a.Router, a.db)
	a.Router.PathPrefix("/static/").Handler(web.Static())

	/* 7) Application areas */
	authflow.NewHandler(creds, profiles, renderer, a.cfg.Server.BaseURL).Register(a.Router)
	ledger.NewHandler(ledgerStore, profiles, renderer).Register(a.Router)

	ent := a.Router.PathPrefix("/enterprise").Subrouter()
	enterprise.NewHandler(orgs, resolver, entStore, profiles, creds, renderer).Register(ent)

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Logger.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	return nil
}
