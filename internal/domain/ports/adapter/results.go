package adapter

import (
	"context"

	"telegram-results-bot/internal/domain/model"
)

// ResultAPI is the upstream result-lookup service. Implementations own their
// retry policy and response cache; callers only consume success or failure.
type ResultAPI interface {
	Lookup(ctx context.Context, examNo string) (*model.ExamResult, error)
}
