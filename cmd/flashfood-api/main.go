// README: API entrypoint; wires stores, coordinator, realtime gateway and the
// HTTP server, then serves until interrupted.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashfood/internal/config"
	api "flashfood/internal/http"
	"flashfood/internal/infra"
	"flashfood/internal/maps"
	"flashfood/internal/modules/cart"
	"flashfood/internal/modules/catalog"
	"flashfood/internal/modules/delivery"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/modules/wallet"
	"flashfood/internal/notify"
	"flashfood/internal/realtime"
	"flashfood/internal/storage"
	"flashfood/internal/types"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	rdb := infra.NewRedis(cfg.Redis.Addr)
	defer rdb.Close()

	tx := storage.NewTxManager(pool)
	orders := order.NewStore(tx)
	runs := progress.NewStore(tx)
	drivers := driver.NewStore(tx)
	wallets := wallet.NewStore(tx)
	carts := cart.NewStore(tx)
	cat := catalog.NewStore(tx)

	local := delivery.NewKeyedLock()
	lease := delivery.NewLeaseLock(rdb, time.Duration(cfg.Delivery.AcceptLockTTLSeconds)*time.Second)
	locks := delivery.NewChainLocker(local, lease)

	var eta delivery.ETAEstimator
	if cfg.Maps.APIKey != "" {
		est, err := maps.NewEstimator(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps estimator: %v", err)
		}
		eta = est
	} else {
		log.Println("no maps api key, stage ETAs disabled")
	}

	registry := realtime.NewRegistry(local, lease)
	bridge := notify.NewBridge(rdb, registry)
	fanout := notify.NewFanout(bridge)
	registry.AddReleaser(fanout)

	bridgeCtx, stopBridge := context.WithCancel(ctx)
	defer stopBridge()
	go func() {
		if err := bridge.Run(bridgeCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("notify bridge: %v", err)
		}
	}()

	svc := delivery.NewService(tx, orders, runs, drivers, wallets, carts, cat, fanout, locks, eta, delivery.Config{
		DriverWageCents: cfg.Delivery.DriverWageCents,
		SystemWalletID:  types.ID(cfg.Delivery.SystemWalletID),
		Currency:        cfg.Delivery.Currency,
	})

	gateway := realtime.NewGateway(registry, svc, drivers)
	handlers := api.NewHandlers(svc, orders, runs, drivers, fanout)
	router := api.NewRouter(handlers, gateway)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	fanout.Flush()
}
