// Command gateway runs the LearnLedger backend: wallet login, course
// catalog and the serialized ledger operation pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnledger/backend/internal/catalog"
	"github.com/learnledger/backend/internal/chain"
	"github.com/learnledger/backend/internal/config"
	"github.com/learnledger/backend/internal/contentstore"
	"github.com/learnledger/backend/internal/courses"
	"github.com/learnledger/backend/internal/httpapi"
	"github.com/learnledger/backend/internal/logging"
	"github.com/learnledger/backend/internal/metrics"
	"github.com/learnledger/backend/internal/middleware"
	"github.com/learnledger/backend/internal/orchestrator"
	"github.com/learnledger/backend/internal/pricing"
	"github.com/learnledger/backend/internal/registry"
	"github.com/learnledger/backend/internal/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New("learnledger-gateway", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New("learnledger")

	// ========================================================================
	// Ledger
	// ========================================================================

	client, err := chain.NewClient(chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		Timeout: cfg.Chain.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ledger, err := chain.NewCourseLedger(client, cfg.Chain.ContractAddress)
	if err != nil {
		return err
	}

	signer, err := wallet.NewSigningIdentity(cfg.Chain.PrivateKey)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Client:         client,
		Signer:         signer,
		ChainID:        big.NewInt(cfg.Chain.ChainID),
		Logger:         logger,
		Metrics:        m,
		QueueSize:      cfg.Chain.QueueSize,
		GasLimit:       cfg.Chain.GasLimit,
		MaxRetries:     cfg.Chain.MaxRetries,
		InitialBackoff: cfg.Chain.InitialBackoff,
		MaxBackoff:     cfg.Chain.MaxBackoff,
		ReceiptPoll:    cfg.Chain.ReceiptPoll,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
	})
	if err != nil {
		return err
	}
	orch.Start()
	defer orch.Stop()

	// ========================================================================
	// Services
	// ========================================================================

	store, err := contentstore.NewPinataStore(contentstore.PinataConfig{
		APIURL:     cfg.ContentStore.APIURL,
		GatewayURL: cfg.ContentStore.GatewayURL,
		APIKey:     cfg.ContentStore.APIKey,
		SecretKey:  cfg.ContentStore.SecretKey,
		Timeout:    cfg.ContentStore.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	feed, err := pricing.NewFeed(pricing.FeedConfig{
		URL:             cfg.Pricing.FeedURL,
		RefreshInterval: cfg.Pricing.RefreshInterval,
		FallbackPrice:   cfg.Pricing.FallbackRate,
	}, logger)
	if err != nil {
		return err
	}

	guarantor := registry.NewGuarantor(ledger, orch, logger)

	courseService, err := courses.New(courses.Config{
		Ledger:    ledger,
		Balances:  client,
		Submitter: orch,
		Registrar: guarantor,
		Rates:     feed,
		Store:     store,
		Signer:    signer.Address(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	reconciler, err := catalog.New(catalog.Config{
		Ledger: ledger,
		Store:  store,
		Viewer: signer.Address(),
		Fanout: cfg.Catalog.Fanout,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	issuer, err := middleware.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	api, err := httpapi.New(httpapi.Config{
		Courses:         courseService,
		Catalog:         reconciler,
		Issuer:          issuer,
		Logger:          logger,
		Metrics:         m,
		MessageTemplate: cfg.Auth.MessageTemplate,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RequestsPerSec:  cfg.Server.RequestsPerSecond,
		RateBurst:       cfg.Server.RateBurst,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	// ========================================================================
	// HTTP server
	// ========================================================================

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"port":   cfg.Server.Port,
			"signer": signer.Address().Hex(),
		}).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
