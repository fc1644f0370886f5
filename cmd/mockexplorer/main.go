package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/logging"
	"github.com/chenzhangda16/grantguard/internal/mockexplorer/generator"
	"github.com/chenzhangda16/grantguard/internal/mockexplorer/rpc"
	"github.com/chenzhangda16/grantguard/internal/mockexplorer/store"
	"github.com/chenzhangda16/grantguard/pkg/rng"
)

func main() {
	var (
		dbPath    = flag.String("db", "./data/mockexplorer.db", "rocksdb path")
		rpcAddr   = flag.String("rpc", ":8080", "listen addr")
		chainID   = flag.Int64("chain", 42161, "chain id served under /data/{chain}")
		det       = flag.Bool("det", false, "reproducible scenario")
		seed      = flag.Int64("seed", 1, "seed for deterministic generation")
		normal    = flag.Int("normal", 60, "honest voters")
		groups    = flag.Int("bot-groups", 3, "scripted voter groups")
		perGroup  = flag.Int("bots-per-group", 4, "voters per scripted group")
		recyclers = flag.Int("recyclers", 3, "voters paid back by a grantee")
		failEvery = flag.Int64("fail-every", 0, "rate limit every n-th explorer call (0 = never)")
		generate  = flag.Bool("generate", true, "generate and load a scenario before serving")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *logLevel, Development: true})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(*dbPath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	if *generate {
		rf := rng.New(rng.ModeFor(*det), *seed)
		sc, truth := generator.New(generator.Config{
			ChainID:      *chainID,
			Now:          time.Now(),
			Normal:       *normal,
			BotGroups:    *groups,
			BotsPerGroup: *perGroup,
			Recyclers:    *recyclers,
		}, rf).Generate()
		if err := st.Load(sc); err != nil {
			logger.Fatal("load scenario", zap.Error(err))
		}
		logger.Info("scenario loaded",
			zap.Stringer("mode", rf.Mode()),
			zap.Int64("seed", rf.Seed()),
			zap.String("active_round", truth.ActiveRound),
			zap.String("concluded_round", truth.ConcludedRound),
			zap.Int("transfers", len(sc.Transfers)),
			zap.Any("bot_groups", truth.BotGroups),
			zap.Any("recycling", truth.Recycling))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              *rpcAddr,
		Handler:           rpc.NewServer(st, rpc.Config{ChainID: *chainID, FailEvery: *failEvery, Logger: logger}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("mockexplorer listening",
		zap.String("addr", *rpcAddr),
		zap.String("db", *dbPath),
		zap.String("explorer", "/api"),
		zap.String("indexer", "/data"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}
