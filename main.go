package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridhook/api"
	"gridhook/config"
	"gridhook/engine"
	"gridhook/exchange"
	"gridhook/logger"
	"gridhook/notify"
	"gridhook/store"
)

// executionSink persists every processed signal and pushes a summary to
// Telegram when configured
type executionSink struct {
	store    *store.Store
	notifier *notify.Telegram
}

func (s *executionSink) RecordExecution(sig *engine.GridSignal, rep *engine.Report) {
	signalID, err := s.store.Signal().Insert(&store.SignalRecord{
		Kind:      string(sig.Kind),
		Symbol:    sig.Symbol,
		Status:    string(rep.Status),
		Message:   rep.Message,
		Cancelled: rep.Cancelled,
	})
	if err != nil {
		logger.Errorf("failed to record signal: %v", err)
		return
	}

	for _, o := range rep.Orders {
		rec := &store.OrderRecord{
			SignalID: signalID,
			Symbol:   o.Request.Symbol,
			Side:     o.Request.Side,
			Type:     o.Request.Type,
			Quantity: o.Request.Quantity.String(),
			Status:   store.OrderStatusPlaced,
			OrderID:  o.OrderID,
		}
		if o.Request.Type == exchange.OrderTypeLimit {
			rec.Price = o.Request.Price.String()
		}
		if !o.Placed() {
			rec.Status = store.OrderStatusRejected
			rec.Reason = o.Err.Error()
		}
		if err := s.store.Order().Insert(rec); err != nil {
			logger.Errorf("failed to record order outcome: %v", err)
		}
	}

	s.notifier.Send(summarize(sig, rep))
}

func summarize(sig *engine.GridSignal, rep *engine.Report) string {
	placed := 0
	for _, o := range rep.Orders {
		if o.Placed() {
			placed++
		}
	}

	switch sig.Kind {
	case engine.KindGridExit:
		return fmt.Sprintf("%s %s (%s): cancelled %d orders, closed %d/%d positions",
			sig.Symbol, rep.Status, sig.Reason, rep.Cancelled, placed, len(rep.Orders))
	default:
		return fmt.Sprintf("%s %s: placed %d/%d orders",
			sig.Symbol, rep.Status, placed, len(rep.Orders))
	}
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	config.Init()
	cfg := config.Get()
	logger.Init(cfg.LogLevel)

	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		logger.Fatalf("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
	}
	if cfg.WebhookPassphrase == "" {
		logger.Warn("WEBHOOK_PASSPHRASE not set, webhook is open to anyone who can reach it")
	}
	if cfg.Testnet {
		logger.Info("Trading against the Binance futures testnet (set TESTNET=false for production)")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	notifier, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		logger.Fatalf("failed to init telegram notifier: %v", err)
	}

	ex := exchange.NewBinanceFutures(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.Testnet)
	eng := engine.New(ex, &executionSink{store: st, notifier: notifier})

	server := api.NewServer(eng, st, cfg.WebhookPassphrase, cfg.APIServerPort)
	if err := server.Start(); err != nil {
		logger.Fatalf("failed to start API server: %v", err)
	}

	// Run until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
}
