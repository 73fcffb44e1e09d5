package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"perp-signal-engine/internal/detector"
	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/engine"
	"perp-signal-engine/internal/ingestor"
	"perp-signal-engine/internal/monitor"
	"perp-signal-engine/internal/notify"
	"perp-signal-engine/internal/observability"
	"perp-signal-engine/internal/provider"
	"perp-signal-engine/internal/queue"
	"perp-signal-engine/internal/storage"
	chstore "perp-signal-engine/internal/storage/clickhouse"
	"perp-signal-engine/internal/storage/memory"
	pgstore "perp-signal-engine/internal/storage/postgres"
)

func main() {
	// Parse flags
	infoEndpoint := flag.String("hyperliquid-endpoint", "https://api.hyperliquid.xyz/info", "Hyperliquid info API endpoint")
	wsEndpoint := flag.String("hyperliquid-ws", "wss://api.hyperliquid.xyz/ws", "Hyperliquid WebSocket endpoint (empty to disable the price feed)")
	binanceEndpoint := flag.String("binance-endpoint", "https://fapi.binance.com", "Binance futures API endpoint for price fallback (empty to disable)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the transition log (empty to disable)")
	clickhouseDB := flag.String("clickhouse-db", "perp_signals", "ClickHouse database name")
	redisAddr := flag.String("redis-addr", "", "Redis address for streams (empty for in-process queues)")
	telegramToken := flag.String("telegram-token", "", "Telegram bot token (empty to log notifications)")
	telegramChatID := flag.Int64("telegram-chat-id", 0, "Telegram chat ID")
	wallets := flag.String("wallets", "", "Comma-separated wallet addresses to add to the watched set")
	sweepInterval := flag.Duration("sweep-interval", 30*time.Second, "Price sweep interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, runConfig{
		infoEndpoint:    *infoEndpoint,
		wsEndpoint:      *wsEndpoint,
		binanceEndpoint: *binanceEndpoint,
		postgresDSN:     *postgresDSN,
		clickhouseDSN:   *clickhouseDSN,
		clickhouseDB:    *clickhouseDB,
		redisAddr:       *redisAddr,
		telegramToken:   *telegramToken,
		telegramChatID:  *telegramChatID,
		wallets:         splitWallets(*wallets),
		sweepInterval:   *sweepInterval,
		useMemory:       *useMemory,
	})

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type runConfig struct {
	infoEndpoint    string
	wsEndpoint      string
	binanceEndpoint string
	postgresDSN     string
	clickhouseDSN   string
	clickhouseDB    string
	redisAddr       string
	telegramToken   string
	telegramChatID  int64
	wallets         []string
	sweepInterval   time.Duration
	useMemory       bool
}

// run builds the full pipeline and blocks until ctx is cancelled.
func run(ctx context.Context, logger *log.Logger, cfg runConfig) error {
	// Require --postgres-dsn unless --use-memory is explicitly set
	if !cfg.useMemory && cfg.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create stores (use interfaces)
	var positionStore storage.PositionStore = memory.NewPositionStore()
	var signalStore storage.SignalStore = memory.NewSignalStore()
	var configStore storage.ConfigStore = memory.NewConfigStore()
	var perfStore storage.PerformanceStore = memory.NewPerformanceStore()
	var walletStore storage.WalletStore = memory.NewWalletStore()

	if cfg.useMemory {
		// The memory config store starts empty; Postgres gets its seed row
		// from the migrations.
		seed := domain.DefaultEngineConfig()
		seed.UpdatedAt = time.Now().UnixMilli()
		if err := configStore.Update(ctx, seed); err != nil {
			return fmt.Errorf("seed config: %w", err)
		}
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		positionStore = pgstore.NewPositionStore(pool)
		signalStore = pgstore.NewSignalStore(pool)
		configStore = pgstore.NewConfigStore(pool)
		perfStore = pgstore.NewPerformanceStore(pool)
		walletStore = pgstore.NewWalletStore(pool)
	}

	// Optional transition log
	var transitionStore storage.TransitionStore
	if cfg.clickhouseDSN != "" {
		conn, err := chstore.NewConnWithDatabase(ctx, cfg.clickhouseDSN, cfg.clickhouseDB)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		transitionStore = chstore.NewTransitionStore(conn)
	}

	// Seed the watched wallet set from flags
	for _, wallet := range cfg.wallets {
		if err := walletStore.Upsert(ctx, wallet); err != nil {
			return fmt.Errorf("add wallet %s: %w", wallet, err)
		}
	}
	watched, err := walletStore.List(ctx)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	if len(watched) == 0 {
		return fmt.Errorf("no wallets to watch: pass --wallets or seed the wallets table")
	}
	logger.Printf("Watching %d wallets", len(watched))

	// Queues: Redis streams in production, in-process otherwise
	var publisher queue.Publisher
	var positionsConsumer, notifyConsumer queue.Consumer
	if cfg.redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		rq := queue.NewRedisQueue(client, "signal-engine", "engine-1", queue.WithLogger(logger))
		publisher = rq
		positionsConsumer = rq
		notifyConsumer = rq
	} else {
		mq := queue.NewMemoryQueue()
		publisher = mq
		positionsConsumer = mq
		notifyConsumer = mq
	}

	// Wallet data provider
	hl := provider.NewHyperliquidClient(cfg.infoEndpoint)

	// Price sources: websocket cache first, then the info API, then Binance
	priceSources := []provider.PriceSource{}
	if cfg.wsEndpoint != "" {
		feed, err := provider.NewWSPriceFeed(ctx, cfg.wsEndpoint, nil)
		if err != nil {
			logger.Printf("WebSocket price feed unavailable, continuing without it: %v", err)
		} else {
			defer feed.Close()
			priceSources = append(priceSources, feed)
		}
	}
	priceSources = append(priceSources, hl)
	if cfg.binanceEndpoint != "" {
		priceSources = append(priceSources, provider.NewBinanceClient(cfg.binanceEndpoint))
	}
	prices := provider.NewChain(logger, priceSources...)

	// Notifier
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.telegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.telegramToken, cfg.telegramChatID)
		if err != nil {
			return fmt.Errorf("create telegram notifier: %w", err)
		}
		notifier = tg
	}

	// Stages
	ing := ingestor.New(hl, positionStore, configStore, publisher, &ingestor.Options{Logger: logger})
	det := detector.New(positionStore, signalStore, configStore, publisher, &detector.Options{Logger: logger})
	mon := monitor.New(signalStore, perfStore, prices, publisher, &monitor.Options{
		Funding:     hl,
		Transitions: transitionStore,
		Logger:      logger,
	})

	eng := engine.NewEngine(engine.EngineOptions{
		Ingestor:       ing,
		DetectorRunner: detector.NewRunner(positionsConsumer, det, logger),
		NotifyRunner:   notify.NewRunner(notifyConsumer, notifier, logger),
		Monitor:        mon,
		WalletStore:    walletStore,
		ConfigStore:    configStore,
		SweepInterval:  cfg.sweepInterval,
		Logger:         logger,
	})

	logger.Println("Starting signal engine...")
	return eng.Run(ctx)
}

// splitWallets parses the comma-separated wallet flag.
func splitWallets(s string) []string {
	var wallets []string
	for _, w := range strings.Split(s, ",") {
		w = strings.TrimSpace(w)
		if w != "" {
			wallets = append(wallets, w)
		}
	}
	return wallets
}
