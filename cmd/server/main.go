package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/chain"
	"settlement/internal/config"
	"settlement/internal/db"
	"settlement/internal/handlers"
	"settlement/internal/keyvault"
	"settlement/internal/prices"
	"settlement/internal/services"
	"settlement/internal/store"
	"settlement/internal/websocket"
)

func main() {
	cfg := config.Load()
	if cfg.AppEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	feeRate, err := decimal.NewFromString(cfg.PlatformFeeRate)
	if err != nil {
		logrus.WithError(err).Fatal("invalid platform fee rate")
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	wallets := store.NewWalletStore(database)
	escrow := store.NewEscrowStore(database)
	audit := store.NewAuditStore(database)
	transactions := store.NewTransactionStore(database)
	withdrawals := store.NewWithdrawalStore(database)
	fees := store.NewFeeStore(database)
	deposits := store.NewDepositStore(database)
	addresses := store.NewAddressStore(database)
	orders := store.NewOrderStore(database)
	admin := store.NewAdminStore(database)
	txRunner := db.NewTxRunner(database)

	hub := websocket.NewHub()
	chainClient := chain.NewClient(cfg.BlockchainAPIBase, cfg.BlockchainAPIToken, 30*time.Second)
	vault := keyvault.NewVault(addresses, wallets, fees, chainClient, cfg.KeyEncryptionKey)
	oracle := prices.NewOracle(prices.DefaultSources(), cfg.PriceTimeout)

	escrowSvc := services.NewEscrowService(txRunner, wallets, escrow, fees, transactions, audit, orders, admin, oracle, hub, feeRate)
	withdrawSvc := services.NewWithdrawalService(txRunner, wallets, withdrawals, addresses, fees, vault, chainClient, oracle, hub, feeRate)
	depositSvc := services.NewDepositService(txRunner, wallets, deposits, transactions, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go oracle.Start(ctx, cfg.PriceRefresh)
	go runAutoRelease(ctx, escrowSvc, cfg.AutoReleaseWindow)

	handler := handlers.New(cfg, wallets, escrow, audit, withdrawals, fees, deposits, transactions, admin, vault, escrowSvc, withdrawSvc, depositSvc, oracle, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", server.Addr).Info("settlement API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Fatal("shutdown error")
	}
}

// runAutoRelease sweeps escrow holdings older than the buyer confirmation
// window once an hour. Per-order failures are logged inside the service and
// picked up again on the next tick.
func runAutoRelease(ctx context.Context, escrowSvc *services.EscrowService, window time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := escrowSvc.ReleaseExpired(ctx, window)
			if err != nil {
				logrus.WithError(err).Error("auto release sweep failed")
				continue
			}
			if released > 0 {
				logrus.WithField("released", released).Info("auto released expired escrow holdings")
			}
		}
	}
}
