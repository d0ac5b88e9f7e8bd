package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticket-exchange/config"
	"ticket-exchange/handlers"
	"ticket-exchange/internal/auction"
	"ticket-exchange/internal/clock"
	"ticket-exchange/internal/credential"
	"ticket-exchange/internal/redeem"
	"ticket-exchange/internal/settlement"
	_ "ticket-exchange/migrations"
	"ticket-exchange/monitoring"
	"ticket-exchange/security"
	"ticket-exchange/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sysClock := clock.System()

	encKey, err := hex.DecodeString(cfg.CredentialEncKey)
	if err != nil {
		return fmt.Errorf("CREDENTIAL_ENC_KEY must be hex: %w", err)
	}
	macKey, err := hex.DecodeString(cfg.CredentialMACKey)
	if err != nil {
		return fmt.Errorf("CREDENTIAL_MAC_KEY must be hex: %w", err)
	}

	codec, err := credential.NewCodec(encKey, macKey, int64(cfg.CredentialTTL.Seconds()), sysClock)
	if err != nil {
		return err
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
	}

	// Initialize services
	ledger := handlers.NewRecordLedger(app)
	redeemService := redeem.NewService(redisClient, codec, ledger, sysClock, monitor)
	verifier := auction.NewSignatureVerifier(ledger, cfg.BidClockSkew, sysClock)
	policy := auction.NewIncrementPolicy(cfg)
	auctionService := auction.NewService(redisClient, verifier, policy, ledger,
		sysClock, pn, monitor, cfg.SweepInterval)

	rateLimiter := security.NewRateLimiter(redisClient)

	// Initialize handlers
	credentialHandler := handlers.NewCredentialHandler(app, codec)
	scanHandler := handlers.NewScanHandler(app, redeemService)
	auctionHandler := handlers.NewAuctionHandler(app, auctionService, sysClock)
	adminHandler := handlers.NewAdminHandler(app, auctionService, sysClock)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Settlement listener: confirmed payments mark auctions settled
	if cfg.SettlementSubKey != "" {
		listener, err := settlement.NewListener(ctx, settlement.Config{
			SubscribeKey: cfg.SettlementSubKey,
			SecretKey:    cfg.SettlementSecret,
			UUID:         cfg.SettlementUUID,
			Channel:      cfg.SettlementChannel,
			CipherKey:    cfg.SettlementCipherKey,
		})
		if err != nil {
			return err
		}

		go func() {
			for {
				select {
				case notice := <-listener.Notices():
					slog.Info("settlement notice received",
						"auction", notice.AuctionID, "reference", notice.Reference)

					if err := ledger.MarkSettled(ctx, notice.AuctionID, notice.Reference); err != nil {
						slog.Error("failed to settle auction",
							"auction", notice.AuctionID, "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Start background tasks
	auctionService.StartSweeper()

	// Metrics endpoint on its own port
	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics server listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// Setup graceful shutdown
	go handleShutdown(cancel, auctionService)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		antiBot := rateLimiter.AntiBot()

		// Credential endpoints
		e.Router.POST("/api/v1/credentials/issue", credentialHandler.IssueCredential).
			BindFunc(antiBot)

		// Scan endpoint, rate limited per gate terminal
		e.Router.POST("/api/v1/scan", scanHandler.Scan).
			BindFunc(rateLimiter.Limit("scan", cfg.ScanRatePerMinute))

		// Auction endpoints
		e.Router.POST("/api/v1/auctions", auctionHandler.CreateAuction).
			BindFunc(antiBot)
		e.Router.POST("/api/v1/auctions/{auctionId}/bids", auctionHandler.SubmitBid).
			BindFunc(rateLimiter.Limit("bid", cfg.BidRatePerMinute))
		e.Router.GET("/api/v1/auctions/{auctionId}", auctionHandler.GetAuction)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/auction-dashboard", adminHandler.GetAuctionDashboard)
		e.Router.POST("/api/v1/admin/close-expired", adminHandler.CloseExpiredAuctions)
		e.Router.POST("/api/v1/admin/scanners", adminHandler.RegisterScanner)
		e.Router.POST("/api/v1/admin/wallet-keys", adminHandler.RegisterWalletKey)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, auctionService *auction.Service) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	auctionService.Shutdown()
	cancel()
}
