package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/cache"
	"github.com/chenzhangda16/grantguard/internal/guard/config"
	"github.com/chenzhangda16/grantguard/internal/guard/engine"
	"github.com/chenzhangda16/grantguard/internal/guard/explorer"
	"github.com/chenzhangda16/grantguard/internal/guard/indexer"
	"github.com/chenzhangda16/grantguard/internal/guard/logging"
	"github.com/chenzhangda16/grantguard/internal/guard/out"
	"github.com/chenzhangda16/grantguard/internal/guard/retry"
	"github.com/chenzhangda16/grantguard/internal/guard/round"
	"github.com/chenzhangda16/grantguard/internal/guard/store"
)

var (
	cfgPath   string
	roundID   string
	storeFlag string
	logLevel  string
	verbose   bool

	cfg    config.Config
	logger *zap.Logger
	eng    *engine.Engine
	docs   store.VersionedDocumentStore
	memo   cache.Cache
)

var rootCmd = &cobra.Command{
	Use:   "guard",
	Short: "grantguard - threat detection for crowdfunding rounds",
	Long: `guard flags script-driven voters, recycled grant funds and repeat
offenders in a funding round, and walks the flagged addresses through review
into the shared threat registry.

Typical flow:
  guard rounds
  guard detect  --round <id>
  guard summary --round <id>
  guard review begin  --round <id>
  guard review submit --round <id> --all
  guard review clear  --round <id>      (after the round has ended)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if storeFlag != "" {
			cfg.Store.Driver = storeFlag
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger, err = logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return openEngine(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeEngine()
	},
}

func openEngine(ctx context.Context) error {
	if cfg.Store.Driver == "rocks" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.RocksPath), 0o755); err != nil {
			return err
		}
	}
	var err error
	docs, err = store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		RocksPath:   cfg.Store.RocksPath,
		PostgresDSN: cfg.Store.PostgresDSN,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	memo = cache.NewMemory()
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, "grantguard:")
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			memo = rc
		}
	}

	var sink out.Sink = out.NopSink{}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := out.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, nil)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		sink = ks
	}

	rlog := logger.Named("retry")
	eng, err = engine.New(engine.Config{
		ChainID:  cfg.ChainID,
		Source:   indexer.NewHTTPSource(cfg.Indexer.BaseURL, cfg.ChainID, cfg.Indexer.Timeout),
		Explorer: explorer.NewHTTPClient(cfg.Explorer.BaseURL, cfg.Explorer.APIKey, cfg.Explorer.Timeout),
		Store:    docs,
		Session: round.NewSession(round.SessionConfig{
			Cache:  memo,
			TTL:    cfg.Cache.TTL,
			Logger: logger,
		}),
		Sink:      sink,
		Threshold: cfg.Detection.SimilarityThreshold,
		Retry: retry.Policy{
			MaxAttempts: cfg.Detection.RetryAttempts,
			BaseDelay:   cfg.Detection.RetryBaseDelay,
			MaxDelay:    cfg.Detection.RetryMaxDelay,
			Jitter:      cfg.Detection.RetryBaseDelay / 5,
			Classify:    retry.FatalOn(),
			OnRetry: func(attempt int, wait time.Duration, err error) {
				rlog.Debug("retry", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
			},
		},
		TracePacer:        explorer.NewPacer(cfg.Explorer.PaceEvery, cfg.Explorer.PaceDelay),
		WalletPacer:       explorer.NewPacer(cfg.Explorer.PaceEvery, cfg.Explorer.WalletPaceDelay),
		WalletConcurrency: cfg.Detection.WalletConcurrency,
		EnrichCutoff:      cfg.Detection.EnrichCutoff,
		Logger:            logger,
	})
	return err
}

// closeEngine is safe to call more than once.
func closeEngine() {
	if eng != nil {
		_ = eng.Close()
		eng = nil
	}
	if memo != nil {
		_ = memo.Close()
		memo = nil
	}
	if docs != nil {
		_ = docs.Close()
		docs = nil
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

// selectRound resolves --round and makes it current.
func selectRound(ctx context.Context) error {
	if roundID == "" {
		return errors.New("--round is required")
	}
	r, lc, err := eng.Select(ctx, roundID)
	if err != nil {
		return err
	}
	logger.Debug("selected", zap.String("round", r.ID), zap.String("lifecycle", string(lc)))
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "yaml config file")
	pf.StringVar(&roundID, "round", "", "round id")
	pf.StringVar(&storeFlag, "store", "", "document store driver: memory | rocks | postgres")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(roundsCmd, detectCmd, classifyCmd, summaryCmd, reportCmd, reviewCmd)
	reviewCmd.AddCommand(reviewStateCmd, reviewBeginCmd, reviewSubmitCmd, reviewClearCmd)

	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print labeled votes as JSON")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "write the CSV here instead of stdout")
	reviewSubmitCmd.Flags().BoolVar(&submitAll, "all", false, "submit every flagged address")
	reviewSubmitCmd.Flags().StringVar(&submitFile, "file", "", "submit the addresses in a reviewed CSV")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	closeEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
