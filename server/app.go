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

	"veil/config"
	"veil/internal/auth"
	"veil/internal/db"
	"veil/internal/health"
	"veil/internal/logs"
	"veil/internal/middleware"
	"veil/internal/models"
	"veil/internal/payments"
	"veil/internal/peers"
	"veil/internal/repo"
	"veil/internal/secretbox"
	"veil/internal/tariffs"
	"veil/internal/wg/host"
	"veil/internal/wgeasy"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
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

	/* 1) Логи */
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
	if d == nil {
		log.Fatalf("database.driver must be configured (postgres|mysql)")
	}
	a.db = d

	if err := a.db.AutoMigrate(
		&models.User{},
		&models.Tariff{},
		&models.UserTariff{},
		&models.Payment{},
		&models.VpnPeer{},
	); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	/* 3) Хранилища и сервисы */
	users := repo.NewUserStore(a.db)
	tariffStore := repo.NewTariffStore(a.db)
	paymentStore := repo.NewPaymentStore(a.db)
	peerStore := repo.NewPeerStore(a.db)

	authSvc := auth.New(users, tariffStore, a.cfg)

	var enc peers.Encryptor
	if box, err := secretbox.New(a.cfg.Crypto.ConfigKey); err != nil {
		logs.Logger.Warnf("config encryption disabled: %v", err)
	} else {
		enc = box
	}

	hostCtl := host.New(a.cfg)
	cpFactory := func(ctx context.Context) (peers.ControlPlane, error) {
		adapter := wgeasy.New(a.cfg, nil)
		if err := adapter.Open(ctx); err != nil {
			return nil, err
		}
		return adapter, nil
	}
	peerSvc := peers.NewService(peerStore, authSvc, hostCtl, cpFactory, enc, a.cfg)

	/* 4) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 5) Маршруты */
	health.RegisterRoutesWithDB(a.Router, a.db) // /healthz, /readyz

	secret := a.cfg.Auth.JWTSecret
	auth.RegisterRoutes(a.Router, auth.NewHandler(authSvc), secret)
	tariffs.RegisterRoutes(a.Router, tariffs.NewHandler(tariffStore), secret)
	payments.RegisterRoutes(a.Router, payments.NewHandler(paymentStore), secret)
	peers.RegisterRoutes(a.Router, peers.NewHandler(peerSvc), secret)

	/* (необязательно) вывести известные маршруты в лог при старте */
	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Printf("route: %-6v %s", methods, path)
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

	// Жёсткие таймауты — это важно для production
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
