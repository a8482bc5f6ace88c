// File: internal/infra/adapters/results/client.go
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/adapter"
	"telegram-results-bot/internal/infra/netutil"
)

// Cache is the optional warm layer in front of the upstream API.
type Cache interface {
	Get(ctx context.Context, examNo string) (*model.ExamResult, error)
	Set(ctx context.Context, result *model.ExamResult)
}

// Client fetches exam results from the ministry results API. Transient
// upstream failures are retried with backoff; a 404 is final.
type Client struct {
	baseURL string
	http    *http.Client
	retry   netutil.Policy
	cache   Cache
	log     *zerolog.Logger
}

var _ adapter.ResultAPI = (*Client)(nil)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

func NewClient(cfg Config, cache Cache, logger *zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: results api base url is empty", domain.ErrInvalidArgument)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   netutil.Policy{MaxAttempts: cfg.MaxAttempts, Backoff: 500 * time.Millisecond},
		cache:   cache,
		log:     logger,
	}, nil
}

// examResultDTO is the upstream wire shape.
type examResultDTO struct {
	ExamNo    string            `json:"exam_number"`
	Status    string            `json:"status"`
	FinalGrad string            `json:"final_grade"`
	FinalRate string            `json:"final_rate"`
	Subjects  map[string]string `json:"subjects"`
	// Ordered subject list used by newer API versions.
	SubjectList []struct {
		Name  string `json:"name"`
		Score string `json:"score"`
	} `json:"subject_list"`
}

// Lookup returns the result for examNo, consulting the cache first. A missing
// result is domain.ErrNotFound and is never retried.
func (c *Client) Lookup(ctx context.Context, examNo string) (*model.ExamResult, error) {
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, examNo); err == nil {
			return cached, nil
		}
	}

	var result *model.ExamResult
	err := c.retry.Do(ctx, func() error {
		var err error
		result, err = c.fetch(ctx, examNo)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, result)
	}
	return result, nil
}

func (c *Client) fetch(ctx context.Context, examNo string) (*model.ExamResult, error) {
	url := fmt.Sprintf("%s/exam-result/%s", c.baseURL, examNo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, netutil.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("examno", examNo).Msg("results api request failed")
		if netutil.ShouldRetry(err) {
			return nil, fmt.Errorf("fetch result: %w", err)
		}
		return nil, netutil.Permanent(fmt.Errorf("fetch result: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return nil, netutil.Permanent(fmt.Errorf("%w: exam number %s", domain.ErrNotFound, examNo))
	case resp.StatusCode >= 500:
		c.log.Warn().Int("status", resp.StatusCode).Str("examno", examNo).Msg("results api server error")
		return nil, fmt.Errorf("results api returned %d", resp.StatusCode)
	default:
		return nil, netutil.Permanent(fmt.Errorf("results api returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read result body: %w", err)
	}
	var dto examResultDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, netutil.Permanent(fmt.Errorf("decode result: %w", err))
	}
	return dto.toModel(examNo), nil
}

func (d *examResultDTO) toModel(examNo string) *model.ExamResult {
	result := &model.ExamResult{
		ExamNo:    examNo,
		Status:    d.Status,
		FinalGrad: d.FinalGrad,
		FinalRate: d.FinalRate,
	}
	if d.ExamNo != "" {
		result.ExamNo = d.ExamNo
	}
	if len(d.SubjectList) > 0 {
		for _, s := range d.SubjectList {
			result.Subjects = append(result.Subjects, model.SubjectScore{Name: s.Name, Score: s.Score})
		}
		return result
	}
	// Map iteration order is random; sort so the rendered card is stable.
	names := make([]string, 0, len(d.Subjects))
	for name := range d.Subjects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result.Subjects = append(result.Subjects, model.SubjectScore{Name: name, Score: d.Subjects[name]})
	}
	return result
}
