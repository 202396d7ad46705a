//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package scheduler runs the background expiry sweeper (§4.12): a single
// long-running worker that periodically clears the key material of every
// submission and chat record whose deadline has passed. It is idempotent —
// sweeping an already-destroyed record changes nothing — and survives
// transient I/O failures by logging and continuing rather than crashing the
// process.
package scheduler

import (
	"context"
	"time"

	"github.com/spiffe/spike-chat/internal/entity"
	"github.com/spiffe/spike-chat/internal/log"
	"github.com/spiffe/spike-chat/internal/store"
)

// Scheduler owns the periodic expiry sweep over the submissions and chat
// documents, locked in that fixed order to match the submission pipeline's
// lock-ordering discipline (§5).
type Scheduler struct {
	submissions *store.Doc[int, entity.Submission]
	messages    *store.Doc[string, entity.Chat]
	interval    time.Duration
}

// New builds a Scheduler over the given stores with the given tick interval.
func New(
	submissions *store.Doc[int, entity.Submission],
	messages *store.Doc[string, entity.Chat],
	interval time.Duration,
) *Scheduler {
	return &Scheduler{submissions: submissions, messages: messages, interval: interval}
}

// Run loops forever, sweeping once per tick, until ctx is canceled. It is
// meant to be launched exactly once at process startup as a background
// goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	const fName = "Run"
	log.Log().Info(fName, "msg", "expiry scheduler starting", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Log().Info(fName, "msg", "expiry scheduler stopping")
			return
		case <-ticker.C:
			swept, chatSwept := s.Sweep()
			if swept > 0 || chatSwept > 0 {
				log.Log().Info(fName, "msg", "expiry sweep completed", "submissions_swept", swept, "chat_swept", chatSwept)
			}
		}
	}
}

// Sweep performs one immediate sweep synchronously, clearing wrapped DEKs of
// expired submissions and the encrypted blobs of expired chat messages. It
// is safe to call concurrently with Run's own ticks and is what the
// force-expire admin trigger invokes directly. It returns the number of
// records newly swept in each document.
func (s *Scheduler) Sweep() (submissionsSwept, chatSwept int) {
	const fName = "Sweep"
	now := time.Now().UTC()

	err := s.submissions.Mutate(func(current map[int]entity.Submission) (map[int]entity.Submission, error) {
		for id, rec := range current {
			if rec.Expired(now) && !rec.Destroyed() {
				rec.WrappedDEK = ""
				current[id] = rec
				submissionsSwept++
			}
		}
		return current, nil
	})
	if err != nil {
		log.Log().Error(fName, "msg", "failed to sweep submissions, will retry next tick", "err", err.Error())
		submissionsSwept = 0
	}

	err = s.messages.Mutate(func(current map[string]entity.Chat) (map[string]entity.Chat, error) {
		for id, rec := range current {
			if now.Before(rec.Expiry) || rec.Expired {
				continue
			}
			rec.EncryptedMessage = ""
			rec.EncryptedKey = ""
			rec.Expired = true
			current[id] = rec
			chatSwept++
		}
		return current, nil
	})
	if err != nil {
		log.Log().Error(fName, "msg", "failed to sweep chat messages, will retry next tick", "err", err.Error())
		chatSwept = 0
	}

	return submissionsSwept, chatSwept
}
