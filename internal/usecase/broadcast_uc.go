package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/adapter"
	"telegram-results-bot/internal/domain/ports/repository"
	"telegram-results-bot/internal/infra/metrics"
)

// BroadcastUseCase fans a message out to every known user.
type BroadcastUseCase interface {
	Run(ctx context.Context, message string) (*model.BroadcastReport, error)
}

// BroadcastConfig tunes batching. Batches bound concurrent sends so a large
// user base does not trip Telegram's flood limits.
type BroadcastConfig struct {
	BatchSize  int           // default 30
	BatchDelay time.Duration // pause between batches, default 1s
}

type broadcastUseCase struct {
	sessions   repository.SessionRepository
	dispatcher adapter.MessageDispatcher
	log        *zerolog.Logger
	batchSize  int
	batchDelay time.Duration
}

var _ BroadcastUseCase = (*broadcastUseCase)(nil)

func NewBroadcastUseCase(
	sessions repository.SessionRepository,
	dispatcher adapter.MessageDispatcher,
	cfg BroadcastConfig,
	logger *zerolog.Logger,
) BroadcastUseCase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = time.Second
	}
	return &broadcastUseCase{
		sessions:   sessions,
		dispatcher: dispatcher,
		log:        logger,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// Run sends message to every known user in concurrent batches and reports the
// outcome. Individual send failures are counted, never fatal; the whole run
// stops early only when ctx is cancelled.
func (uc *broadcastUseCase) Run(ctx context.Context, message string) (*model.BroadcastReport, error) {
	jobID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
	start := time.Now()

	userIDs, err := uc.sessions.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list broadcast targets: %w", err)
	}
	if len(userIDs) == 0 {
		uc.log.Info().Str("job_id", jobID).Msg("broadcast skipped, no targets")
		return &model.BroadcastReport{JobID: jobID, Duration: time.Since(start)}, nil
	}

	uc.log.Info().Str("job_id", jobID).Int("targets", len(userIDs)).Msg("broadcast started")

	payload := adapter.Payload{Text: message}
	var sent, failed int64

	for offset := 0; offset < len(userIDs); offset += uc.batchSize {
		end := offset + uc.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, userID := range userIDs[offset:end] {
			userID := userID
			g.Go(func() error {
				if err := uc.dispatcher.Send(gctx, userID, payload); err != nil {
					atomic.AddInt64(&failed, 1)
					metrics.IncBroadcastMessage("failed")
					uc.log.Warn().Err(err).Str("job_id", jobID).Int64("tg_id", userID).Msg("broadcast send failed")
					return nil
				}
				atomic.AddInt64(&sent, 1)
				metrics.IncBroadcastMessage("sent")
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(userIDs) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(uc.batchDelay):
			}
		}
	}

	report := &model.BroadcastReport{
		JobID:    jobID,
		Sent:     int(atomic.LoadInt64(&sent)),
		Failed:   int(atomic.LoadInt64(&failed)),
		Duration: time.Since(start),
	}
	metrics.ObserveBroadcastDuration(report.Duration.Seconds())
	uc.log.Info().
		Str("job_id", jobID).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Dur("took", report.Duration).
		Msg("broadcast finished")
	return report, nil
}
