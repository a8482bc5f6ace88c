package repository

import (
	"context"

	"telegram-results-bot/internal/domain/model"
)

// StudentDirectory is the relational store of students and their locally
// imported exam results.
type StudentDirectory interface {
	// SearchByName matches names as a substring, optionally narrowed to one
	// governorate. limit bounds the returned page; TotalCount/HasMore reflect
	// the full match count.
	SearchByName(ctx context.Context, name, governorate string, limit, offset int) (*model.SearchResult, error)
	FindByExamNo(ctx context.Context, examNo string) (*model.Student, error)
	// FindResult returns domain.ErrNotFound when no local result exists; the
	// conversation then falls back to the external result API.
	FindResult(ctx context.Context, examNo string) (*model.ExamResult, error)
	ListGovernorates(ctx context.Context) ([]string, error)
}
