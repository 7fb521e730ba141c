package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tallybook/tallybook/internal/ledger/accounts"
)

// LedgerIntegrityJob recomputes the trial balance for each owner and reports
// books where debits and credits drift apart. Posted entries always move
// balanced line sets, so a drift here means out-of-band writes or corruption.
type LedgerIntegrityJob struct {
	repo     accounts.Repository
	accounts *accounts.Service
	logger   *slog.Logger
}

func NewLedgerIntegrityJob(repo accounts.Repository, svc *accounts.Service, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{repo: repo, accounts: svc, logger: logger}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	owners := []string{payload.UserID}
	if payload.UserID == "" {
		var err error
		owners, err = j.repo.DistinctUserIDs(ctx)
		if err != nil {
			return err
		}
	}

	unbalanced := 0
	for _, owner := range owners {
		tb, err := j.accounts.TrialBalance(ctx, owner)
		if err != nil {
			j.logger.Warn("integrity sweep: trial balance failed",
				slog.String("user_id", owner), slog.Any("error", err))
			continue
		}
		if !tb.IsBalanced {
			unbalanced++
			j.logger.Error("integrity sweep: books out of balance",
				slog.String("user_id", owner),
				slog.String("total_debits", tb.TotalDebits.String()),
				slog.String("total_credits", tb.TotalCredits.String()))
		}
	}

	j.logger.Info("integrity sweep done",
		slog.Int("owners", len(owners)), slog.Int("unbalanced", unbalanced))
	return nil
}
