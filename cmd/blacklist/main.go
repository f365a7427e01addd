// Package main provides an operator CLI for the persistent player blacklist.
//
// Usage:
//
//	blacklist -config configs/dev.yaml -block 42 -reason "chargeback"
//	blacklist -config configs/dev.yaml -unblock 42
//	blacklist -config configs/dev.yaml -list
//
// Changes made here take effect for new connections; a running server only
// disconnects players blocked through its admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/config"
	"github.com/cory-johannsen/smuggle/internal/moderation"
	"github.com/cory-johannsen/smuggle/internal/storage/postgres"
	"github.com/cory-johannsen/smuggle/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	block := flag.Int64("block", 0, "player id to block")
	unblock := flag.Int64("unblock", 0, "player id to unblock")
	reason := flag.String("reason", "", "reason recorded with -block")
	list := flag.Bool("list", false, "list blocked players")
	flag.Parse()

	actions := 0
	for _, set := range []bool{*block != 0, *unblock != 0, *list} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("opening blacklist store: %v", err)
	}
	defer closeRepo()
	svc := moderation.NewService(repo, zap.NewNop())

	switch {
	case *block != 0:
		if err := svc.Block(ctx, *block, *reason); err != nil {
			log.Fatalf("blocking player %d: %v", *block, err)
		}
		fmt.Fprintf(os.Stdout, "blocked player %d [%s]\n", *block, time.Since(start))
	case *unblock != 0:
		if err := svc.Unblock(ctx, *unblock); err != nil {
			log.Fatalf("unblocking player %d: %v", *unblock, err)
		}
		fmt.Fprintf(os.Stdout, "unblocked player %d [%s]\n", *unblock, time.Since(start))
	case *list:
		entries, err := svc.List(ctx)
		if err != nil {
			log.Fatalf("listing blacklist: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PLAYER\tBLOCKED AT\tREASON")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\n", e.PlayerID, e.BlockedAt.Format(time.RFC3339), e.Reason)
		}
		_ = w.Flush()
	}
}

func openRepository(ctx context.Context, cfg config.Config) (moderation.Repository, func(), error) {
	switch cfg.Blacklist.Store {
	case "sqlite":
		store, err := sqlite.Open(cfg.Blacklist.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := store.CheckSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store.Blacklist(), store.Close, nil
	default:
		return nil, nil, fmt.Errorf("blacklist store %q is not persistent", cfg.Blacklist.Store)
	}
}
