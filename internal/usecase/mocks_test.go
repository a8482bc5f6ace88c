// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/adapter"
)

// memSessionRepo is a small in-memory implementation used by unit tests.
type memSessionRepo struct {
	mu      sync.RWMutex
	store   map[int64]*model.Session
	saveErr error // used by tests to simulate save failures
	getErr  error
	listErr error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{store: make(map[int64]*model.Session)}
}

func (m *memSessionRepo) Get(ctx context.Context, userID int64) (*model.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) Save(ctx context.Context, session *model.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.store[session.UserID] = &cp
	return nil
}

func (m *memSessionRepo) ListUserIDs(ctx context.Context) ([]int64, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.store))
	for id := range m.store {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memSessionRepo) stateOf(userID int64) model.ConversationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[userID]
	if !ok {
		return nil
	}
	return s.State
}

// memStudentDirectory serves canned students and results.
type memStudentDirectory struct {
	mu           sync.RWMutex
	students     map[string]*model.Student // by exam number
	results      map[string]*model.ExamResult
	governorates []string
	searchErr    error
	findErr      error
}

func newMemStudentDirectory() *memStudentDirectory {
	return &memStudentDirectory{
		students:     make(map[string]*model.Student),
		results:      make(map[string]*model.ExamResult),
		governorates: []string{"بغداد", "البصرة", "نينوى"},
	}
}

func (m *memStudentDirectory) add(s *model.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ExamNo] = s
}

func (m *memStudentDirectory) addResult(r *model.ExamResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ExamNo] = r
}

func (m *memStudentDirectory) SearchByName(ctx context.Context, name, governorate string, limit, offset int) (*model.SearchResult, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*model.Student
	for _, s := range m.students {
		if strings.Contains(s.Name, name) && (governorate == "" || s.Governorate == governorate) {
			matched = append(matched, s)
		}
	}
	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	hasMore := false
	if len(matched) > limit {
		matched = matched[:limit]
		hasMore = true
	}
	return &model.SearchResult{Students: matched, TotalCount: total, HasMore: hasMore}, nil
}

func (m *memStudentDirectory) FindByExamNo(ctx context.Context, examNo string) (*model.Student, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[examNo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *memStudentDirectory) FindResult(ctx context.Context, examNo string) (*model.ExamResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[examNo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (m *memStudentDirectory) ListGovernorates(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.governorates...), nil
}

// mockResultAPI returns one canned result per exam number.
type mockResultAPI struct {
	mu      sync.Mutex
	results map[string]*model.ExamResult
	err     error
	calls   int
}

func (m *mockResultAPI) Lookup(ctx context.Context, examNo string) (*model.ExamResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.results[examNo]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// mockDispatcher records every outbound message.
type mockDispatcher struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr map[int64]error // per-user failures
}

type sentMessage struct {
	userID  int64
	payload adapter.Payload
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{sendErr: make(map[int64]error)}
}

func (m *mockDispatcher) Send(ctx context.Context, userID int64, p adapter.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.sendErr[userID]; ok {
		return err
	}
	m.sent = append(m.sent, sentMessage{userID: userID, payload: p})
	return nil
}

func (m *mockDispatcher) Edit(ctx context.Context, userID int64, ref adapter.MessageRef, p adapter.Payload) error {
	return m.Send(ctx, userID, p)
}

func (m *mockDispatcher) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	return nil
}

func (m *mockDispatcher) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fakeLimiter admits the first allowN calls per user, then blocks.
type fakeLimiter struct {
	mu     sync.Mutex
	allowN int
	counts map[int64]int
}

func newFakeLimiter(allowN int) *fakeLimiter {
	return &fakeLimiter{allowN: allowN, counts: make(map[int64]int)}
}

func (f *fakeLimiter) Allow(ctx context.Context, userID int64, max int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[userID]++
	return f.counts[userID] <= f.allowN
}

// fakeSubChecker gates subscription checks per user.
type fakeSubChecker struct {
	mu         sync.Mutex
	subscribed map[int64]bool
	err        error
}

func (f *fakeSubChecker) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.subscribed[userID], nil
}

// fakeBroadcaster records the last broadcast request.
type fakeBroadcaster struct {
	mu      sync.Mutex
	lastMsg string
	report  *model.BroadcastReport
	err     error
}

func (f *fakeBroadcaster) Run(ctx context.Context, message string) (*model.BroadcastReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMsg = message
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &model.BroadcastReport{JobID: "test-job", Sent: 1}, nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
