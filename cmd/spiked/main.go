//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Command spiked is the submission and messaging backend's HTTP service
// entrypoint: it loads configuration, bootstraps the vault, opens the
// persistent stores, starts the expiry scheduler, and serves the HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spiffe/spike-chat/internal/chat"
	"github.com/spiffe/spike-chat/internal/commitment"
	"github.com/spiffe/spike-chat/internal/config"
	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/ledger"
	"github.com/spiffe/spike-chat/internal/lock"
	"github.com/spiffe/spike-chat/internal/log"
	"github.com/spiffe/spike-chat/internal/route"
	"github.com/spiffe/spike-chat/internal/scheduler"
	"github.com/spiffe/spike-chat/internal/store"
	"github.com/spiffe/spike-chat/internal/submission"
	"github.com/spiffe/spike-chat/internal/vault"
)

const defaultAddr = ":8443"

func main() {
	const fName = "main"

	cfg, err := config.Load()
	if err != nil {
		log.Log().Error(fName, "msg", "failed to load configuration", "err", err.Error())
		os.Exit(1)
	}
	log.SetLevel(cfg.SlogLevel())

	v, err := vault.Open(cfg.VaultDir)
	if err != nil {
		log.Log().Error(fName, "msg", "failed to open vault", "err", err.Error())
		os.Exit(1)
	}

	locks := lock.NewTable()
	submissionsDoc := store.New[int, entity.Submission](locks, "submissions", filepath.Join(cfg.DataDir, "submissions.json"))
	commitmentsDoc := store.New[string, bool](locks, "commitments", filepath.Join(cfg.DataDir, "commitments.json"))
	proofsDoc := store.New[string, ledger.State](locks, "proofs", filepath.Join(cfg.DataDir, "proofs.json"))
	chatDoc := store.New[string, entity.Chat](locks, "chat-messages", filepath.Join(cfg.DataDir, "chat.json"))
	keysDoc := store.New[string, string](locks, "public-keys", v.PublicKeysPath())

	proofs := ledger.New(proofsDoc)
	commitments := commitment.NewSet(commitmentsDoc)
	submissions := submission.New(submissionsDoc, commitments, proofs, v.KEK(), cfg.PowDifficulty, cfg.KeyExpiry)
	chats := chat.New(chatDoc, keysDoc, proofs, v.SigningKey(), cfg.KeyExpiry)
	sched := scheduler.New(submissionsDoc, chatDoc, cfg.SweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	rt := route.New(submissions, chats, proofs, sched, v.SigningKey(), cfg.AdminToken)

	addr := os.Getenv("SPIKE_CHAT_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           rt.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Log().Info(fName, "msg", "listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Log().Error(fName, "msg", "server failed", "err", err.Error())
			os.Exit(1)
		}
	}()

	<-stop
	log.Log().Info(fName, "msg", "shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Log().Error(fName, "msg", "graceful shutdown failed", "err", err.Error())
	}
}
