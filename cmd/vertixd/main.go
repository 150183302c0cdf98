package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vertix/config"
	"vertix/core/events"
	"vertix/crypto"
	nativecommon "vertix/native/common"
	"vertix/native/escrow"
	"vertix/native/fees"
	"vertix/native/roles"
	"vertix/observability"
	"vertix/observability/logging"
	"vertix/rpc"
	"vertix/state"
	"vertix/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VERTIX_ENV"))
	logger := logging.Setup("vertixd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if strings.TrimSpace(cfg.DataDir) == "" {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("Failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	ledger := state.NewLedger(db)
	registry := roles.NewRegistry(ledger)
	if err := seedRoles(registry, cfg); err != nil {
		logger.Error("Failed to seed roles", slog.Any("error", err))
		os.Exit(1)
	}

	// Fee collection pays out of the custody vault; an unset treasury would
	// leave fees inside it and corrupt the conservation accounting.
	if strings.TrimSpace(cfg.Treasury) == "" {
		logger.Error("Treasury account must be configured before the daemon can settle fees")
		os.Exit(1)
	}
	treasury, err := crypto.ParseAddress(cfg.Treasury)
	if err != nil {
		logger.Error("Invalid treasury address", slog.Any("error", err))
		os.Exit(1)
	}
	sink := fees.NewSink(treasury, ledger)
	pauses := nativecommon.NewPauseSet()
	eventLog := events.NewLog(0)

	engine := escrow.NewEngine()
	engine.SetState(ledger)
	engine.SetPaymentRouter(ledger)
	engine.SetFeeSink(sink)
	engine.SetRoleGate(registry)
	engine.SetPauses(pauses)
	engine.SetEmitter(observability.NewEmitter(eventLog))
	if err := engine.InitFeeBps(cfg.Escrow.PlatformFeeBps); err != nil {
		logger.Error("Invalid fee configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := engine.SetPenaltyBps(cfg.Escrow.CancellationPenaltyBps); err != nil {
		logger.Error("Invalid penalty configuration", slog.Any("error", err))
		os.Exit(1)
	}
	limits, err := cfg.Limits()
	if err != nil {
		logger.Error("Invalid escrow limits", slog.Any("error", err))
		os.Exit(1)
	}
	engine.SetLimits(limits)

	for _, marketplace := range cfg.AuthorizedMarketplaces {
		addr, err := crypto.ParseAddress(marketplace)
		if err != nil {
			logger.Error("Invalid marketplace address", slog.Any("error", err))
			os.Exit(1)
		}
		if err := ledger.MarketplaceSetAuthorized(addr, true); err != nil {
			logger.Error("Failed to seed marketplace allow-list", slog.Any("error", err))
			os.Exit(1)
		}
	}

	server := rpc.NewServer(engine, sink, registry, pauses, eventLog, cfg.RPCAuthToken)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("RPC listening", slog.String("address", cfg.RPCAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("RPC server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
	logger.Info("vertixd stopped")
}

func seedRoles(registry *roles.Registry, cfg *config.Config) error {
	groups := []struct {
		role    string
		members []string
	}{
		{roles.RoleAdmin, cfg.Admins},
		{roles.RoleFeeManager, cfg.FeeManagers},
		{roles.RoleArbitrator, cfg.Arbitrators},
	}
	for _, group := range groups {
		for _, member := range group.members {
			addr, err := crypto.ParseAddress(member)
			if err != nil {
				return err
			}
			if err := registry.Grant(group.role, addr); err != nil {
				return err
			}
		}
	}
	return nil
}
