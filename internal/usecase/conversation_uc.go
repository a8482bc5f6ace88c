package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/adapter"
	"telegram-results-bot/internal/domain/ports/repository"
	"telegram-results-bot/internal/infra/i18n"
	"telegram-results-bot/internal/infra/metrics"
)

// EventKind discriminates inbound conversation events.
type EventKind string

const (
	EventStart    EventKind = "start"
	EventText     EventKind = "text"
	EventCallback EventKind = "callback"
)

// Event is one inbound user interaction, already decoded from the transport.
type Event struct {
	Kind       EventKind
	Text       string             // text messages and commands
	Data       string             // callback button data
	CallbackID string             // callback query id, for acks
	Ref        adapter.MessageRef // message carrying the pressed keyboard
}

// Reply is the render instruction handed back to the ingress layer. Edit
// replies rewrite the message the user interacted with; otherwise a new
// message is sent. Ack text answers the callback query (AckAlert pops it up).
type Reply struct {
	Payload  adapter.Payload
	Edit     bool
	Ref      adapter.MessageRef
	Ack      string
	AckAlert bool
	// Silent suppresses any message send; only the callback ack is delivered.
	Silent bool
}

// Callback data and text tokens understood by the conversation. These values
// are wire contract with previously rendered keyboards, so they never change.
const (
	cbMainMenu  = "main_menu"
	cbByName    = "search_name"
	cbByExamNo  = "search_examno"
	cbCheckSub  = "check_subscription"
	prefixGov   = "gov_"
	prefixPick  = "select_student_"
	prefixShare = "share_"

	broadcastCommand = "/broadcast"
	confirmToken     = "تأكيد"
	cancelToken      = "إلغاء"
)

// RateLimiter admits or rejects rate-sensitive actions. Implementations fail
// open: an unreachable counter store must not lock users out.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, max int) bool
}

// ConversationConfig tunes the state machine.
type ConversationConfig struct {
	AdminIDs        []int64
	ResultPageSize  int // bounded name-search page, default 5
	SearchPerMinute int // rate limit for search-triggering actions
	ChannelTitle    string
	ChannelUsername string
}

// ConversationUseCase is the per-user finite state machine behind every
// inbound update: it decides the next state, the queries to issue and the
// reply to render.
type ConversationUseCase struct {
	sessions    repository.SessionRepository
	directory   repository.StudentDirectory
	resultAPI   adapter.ResultAPI
	limiter     RateLimiter
	subs        adapter.SubscriptionChecker
	broadcaster BroadcastUseCase
	tr          *i18n.Translator
	log         *zerolog.Logger

	admins      map[int64]struct{}
	pageSize    int
	perMinute   int
	channelName string
	channelUser string
}

func NewConversationUseCase(
	sessions repository.SessionRepository,
	directory repository.StudentDirectory,
	resultAPI adapter.ResultAPI,
	limiter RateLimiter,
	subs adapter.SubscriptionChecker,
	broadcaster BroadcastUseCase,
	tr *i18n.Translator,
	cfg ConversationConfig,
	logger *zerolog.Logger,
) *ConversationUseCase {
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	if cfg.ResultPageSize <= 0 {
		cfg.ResultPageSize = 5
	}
	if cfg.SearchPerMinute <= 0 {
		cfg.SearchPerMinute = 3
	}
	return &ConversationUseCase{
		sessions:    sessions,
		directory:   directory,
		resultAPI:   resultAPI,
		limiter:     limiter,
		subs:        subs,
		broadcaster: broadcaster,
		tr:          tr,
		log:         logger,
		admins:      admins,
		pageSize:    cfg.ResultPageSize,
		perMinute:   cfg.SearchPerMinute,
		channelName: cfg.ChannelTitle,
		channelUser: cfg.ChannelUsername,
	}
}

// HandleInbound runs one event through the state machine. Internal failures
// never escape: they are logged and converted to a generic system-error reply
// without touching persisted state, so the user can safely retry.
func (uc *ConversationUseCase) HandleInbound(ctx context.Context, userID int64, ev Event) *Reply {
	state, err := uc.loadState(ctx, userID)
	if err != nil {
		uc.log.Error().Err(err).Int64("tg_id", userID).Msg("failed to load session state")
		metrics.IncConversationEvent("unknown", "error")
		return uc.systemError(ev)
	}

	reply, err := uc.handle(ctx, userID, state, ev)
	if err != nil {
		uc.log.Error().Err(err).
			Int64("tg_id", userID).
			Str("step", string(state.Step())).
			Str("event", string(ev.Kind)).
			Msg("conversation transition failed")
		metrics.IncConversationEvent(string(state.Step()), "error")
		return uc.systemError(ev)
	}
	return reply
}

func (uc *ConversationUseCase) handle(ctx context.Context, userID int64, state model.ConversationState, ev Event) (*Reply, error) {
	switch ev.Kind {
	case EventStart:
		return uc.handleStart(ctx, userID, ev)
	case EventCallback:
		return uc.handleCallback(ctx, userID, state, ev)
	case EventText:
		return uc.handleText(ctx, userID, state, ev)
	default:
		return nil, fmt.Errorf("%w: event kind %q", domain.ErrInvalidArgument, ev.Kind)
	}
}

func (uc *ConversationUseCase) handleStart(ctx context.Context, userID int64, ev Event) (*Reply, error) {
	if ok, err := uc.isSubscribed(ctx, userID); err == nil && !ok {
		return uc.subscriptionRequired(ev), nil
	}
	uc.saveState(ctx, userID, model.MainMenu{})
	metrics.IncConversationEvent(string(model.StepMainMenu), "ok")
	return uc.mainMenuReply(ev, uc.tr.T("welcome_message")), nil
}

func (uc *ConversationUseCase) handleCallback(ctx context.Context, userID int64, state model.ConversationState, ev Event) (*Reply, error) {
	data := strings.TrimSpace(ev.Data)

	switch {
	case data == cbMainMenu:
		uc.saveState(ctx, userID, model.MainMenu{})
		return uc.editReply(ev, uc.tr.T("welcome_message"), uc.mainMenuKeyboard()), nil

	case data == cbByName:
		if ok, err := uc.isSubscribed(ctx, userID); err == nil && !ok {
			return uc.subscriptionRequired(ev), nil
		}
		govs, err := uc.directory.ListGovernorates(ctx)
		if err != nil {
			return nil, fmt.Errorf("list governorates: %w", err)
		}
		uc.saveState(ctx, userID, model.WaitingGovernorate{})
		metrics.IncConversationEvent(string(model.StepWaitingGovernorate), "ok")
		return uc.editReply(ev, uc.tr.T("governorate_prompt"), uc.governoratesKeyboard(govs)), nil

	case data == cbByExamNo:
		if ok, err := uc.isSubscribed(ctx, userID); err == nil && !ok {
			return uc.subscriptionRequired(ev), nil
		}
		uc.saveState(ctx, userID, model.WaitingExamNo{})
		metrics.IncConversationEvent(string(model.StepWaitingExamNo), "ok")
		return uc.editReply(ev, uc.tr.T("examno_prompt"), uc.backKeyboard()), nil

	case strings.HasPrefix(data, prefixGov):
		return uc.handleGovernorate(ctx, userID, state, ev, strings.TrimPrefix(data, prefixGov))

	case strings.HasPrefix(data, prefixPick):
		return uc.handleStudentPick(ctx, userID, ev, strings.TrimPrefix(data, prefixPick))

	case strings.HasPrefix(data, prefixShare):
		return uc.handleShare(ctx, ev, strings.TrimPrefix(data, prefixShare))

	case data == cbCheckSub:
		return uc.handleSubscriptionCheck(ctx, userID, ev)

	default:
		metrics.IncConversationEvent(string(state.Step()), "invalid")
		return uc.editReply(ev, uc.tr.T("invalid_choice"), uc.mainMenuKeyboard()), nil
	}
}

func (uc *ConversationUseCase) handleGovernorate(ctx context.Context, userID int64, state model.ConversationState, ev Event, gov string) (*Reply, error) {
	if _, ok := state.(model.WaitingGovernorate); !ok {
		// Stale keyboard from an old message; do not disturb the current flow.
		metrics.IncConversationEvent(string(state.Step()), "invalid")
		return uc.editReply(ev, uc.tr.T("invalid_choice"), uc.mainMenuKeyboard()), nil
	}
	uc.saveState(ctx, userID, model.WaitingName{Governorate: gov})
	metrics.IncConversationEvent(string(model.StepWaitingName), "ok")
	return uc.editReply(ev, uc.tr.T("name_prompt", gov), uc.backKeyboard()), nil
}

func (uc *ConversationUseCase) handleStudentPick(ctx context.Context, userID int64, ev Event, examNo string) (*Reply, error) {
	if !uc.limiter.Allow(ctx, userID, uc.perMinute) {
		metrics.IncRateLimitBlock()
		return &Reply{Silent: true, Ack: uc.tr.T("rate_limited", uc.perMinute), AckAlert: true}, nil
	}
	text, keyboard, err := uc.renderStudentResult(ctx, examNo)
	if err != nil {
		return nil, err
	}
	uc.saveState(ctx, userID, model.MainMenu{})
	metrics.IncConversationEvent(string(model.StepMainMenu), "ok")
	return uc.editReply(ev, text, keyboard), nil
}

func (uc *ConversationUseCase) handleShare(ctx context.Context, ev Event, examNo string) (*Reply, error) {
	student, err := uc.directory.FindByExamNo(ctx, examNo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &Reply{Silent: true, Ack: uc.tr.T("share_failed"), AckAlert: true}, nil
		}
		return nil, fmt.Errorf("find student for share: %w", err)
	}
	return &Reply{
		Payload: adapter.Payload{Text: uc.tr.T("share_message", student.Name, student.ExamNo)},
		Ack:     uc.tr.T("share_prepared"),
	}, nil
}

func (uc *ConversationUseCase) handleSubscriptionCheck(ctx context.Context, userID int64, ev Event) (*Reply, error) {
	ok, err := uc.isSubscribed(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("subscription check: %w", err)
	}
	if !ok {
		r := uc.subscriptionRequired(ev)
		r.Ack = uc.tr.T("subscription_failed")
		r.AckAlert = true
		return r, nil
	}
	uc.saveState(ctx, userID, model.MainMenu{})
	return uc.editReply(ev, uc.tr.T("subscription_success"), uc.mainMenuKeyboard()), nil
}

func (uc *ConversationUseCase) handleText(ctx context.Context, userID int64, state model.ConversationState, ev Event) (*Reply, error) {
	text := strings.TrimSpace(ev.Text)

	// The broadcast command only starts a draft from the main menu; typed
	// mid-flow it is ordinary input for the current step.
	if text == broadcastCommand && state.Step() == model.StepMainMenu {
		if _, isAdmin := uc.admins[userID]; !isAdmin {
			uc.log.Warn().Int64("tg_id", userID).Msg("broadcast command from non-admin")
			metrics.IncConversationEvent(string(state.Step()), "invalid")
			return uc.sendReply(uc.tr.T("unauthorized"), nil), nil
		}
		uc.saveState(ctx, userID, model.WaitingBroadcastBody{})
		metrics.IncConversationEvent(string(model.StepWaitingBroadcastBody), "ok")
		return uc.sendReply(uc.tr.T("broadcast_prompt"), nil), nil
	}

	switch s := state.(type) {
	case model.WaitingName:
		return uc.handleNameInput(ctx, userID, s, text)
	case model.WaitingExamNo:
		return uc.handleExamNoInput(ctx, userID, text)
	case model.WaitingBroadcastBody:
		return uc.handleBroadcastBody(ctx, userID, text)
	case model.WaitingBroadcastConfirm:
		return uc.handleBroadcastConfirm(ctx, userID, s, text)
	case model.WaitingGovernorate:
		// Governorates are chosen from the keyboard, not typed.
		metrics.IncConversationEvent(string(model.StepWaitingGovernorate), "invalid")
		return uc.sendReply(uc.tr.T("governorate_prompt"), uc.backKeyboard()), nil
	default:
		uc.saveState(ctx, userID, model.MainMenu{})
		return uc.sendReply(uc.tr.T("welcome_message"), uc.mainMenuKeyboard()), nil
	}
}

func (uc *ConversationUseCase) handleNameInput(ctx context.Context, userID int64, state model.WaitingName, text string) (*Reply, error) {
	if !uc.limiter.Allow(ctx, userID, uc.perMinute) {
		metrics.IncRateLimitBlock()
		metrics.IncConversationEvent(string(model.StepWaitingName), "rate_limited")
		return uc.sendReply(uc.tr.T("rate_limited", uc.perMinute), uc.backKeyboard()), nil
	}

	name, ok := CleanArabicName(text)
	if !ok {
		metrics.IncConversationEvent(string(model.StepWaitingName), "invalid")
		return uc.sendReply(uc.tr.T("invalid_name"), uc.backKeyboard()), nil
	}
	if IsSpamInput(name) {
		metrics.IncConversationEvent(string(model.StepWaitingName), "invalid")
		return uc.sendReply(uc.tr.T("invalid_input"), uc.backKeyboard()), nil
	}

	result, err := uc.directory.SearchByName(ctx, name, state.Governorate, uc.pageSize, 0)
	if err != nil {
		return nil, fmt.Errorf("search by name: %w", err)
	}

	switch len(result.Students) {
	case 0:
		uc.saveState(ctx, userID, model.MainMenu{})
		metrics.IncConversationEvent(string(model.StepWaitingName), "ok")
		return uc.sendReply(uc.tr.T("no_results_name", name, state.Governorate), uc.backKeyboard()), nil
	case 1:
		// Save only after the lookup so a failed render keeps the user in
		// WaitingName and retyping the name is a clean retry.
		text, keyboard, err := uc.renderStudentResult(ctx, result.Students[0].ExamNo)
		if err != nil {
			return nil, err
		}
		uc.saveState(ctx, userID, model.MainMenu{})
		metrics.IncConversationEvent(string(model.StepWaitingName), "ok")
		return uc.sendReply(text, keyboard), nil
	default:
		uc.saveState(ctx, userID, model.MainMenu{})
		metrics.IncConversationEvent(string(model.StepWaitingName), "ok")
		return uc.sendReply(
			uc.formatResultList(name, state.Governorate, result),
			uc.studentsKeyboard(result.Students),
		), nil
	}
}

func (uc *ConversationUseCase) handleExamNoInput(ctx context.Context, userID int64, text string) (*Reply, error) {
	if !uc.limiter.Allow(ctx, userID, uc.perMinute) {
		metrics.IncRateLimitBlock()
		metrics.IncConversationEvent(string(model.StepWaitingExamNo), "rate_limited")
		return uc.sendReply(uc.tr.T("rate_limited", uc.perMinute), uc.backKeyboard()), nil
	}

	examNo, ok := CleanExamNumber(text)
	if !ok {
		metrics.IncConversationEvent(string(model.StepWaitingExamNo), "invalid")
		return uc.sendReply(uc.tr.T("invalid_examno"), uc.backKeyboard()), nil
	}

	result, keyboard, err := uc.renderStudentResult(ctx, examNo)
	if err != nil {
		return nil, err
	}
	uc.saveState(ctx, userID, model.MainMenu{})
	metrics.IncConversationEvent(string(model.StepWaitingExamNo), "ok")
	return uc.sendReply(result, keyboard), nil
}

func (uc *ConversationUseCase) handleBroadcastBody(ctx context.Context, userID int64, text string) (*Reply, error) {
	if text == cancelToken {
		uc.saveState(ctx, userID, model.MainMenu{})
		return uc.sendReply(uc.tr.T("broadcast_cancelled"), uc.mainMenuKeyboard()), nil
	}
	uc.saveState(ctx, userID, model.WaitingBroadcastConfirm{Message: text})
	metrics.IncConversationEvent(string(model.StepWaitingBroadcastConfirm), "ok")
	return uc.sendReply(uc.tr.T("broadcast_confirm", text), nil), nil
}

func (uc *ConversationUseCase) handleBroadcastConfirm(ctx context.Context, userID int64, state model.WaitingBroadcastConfirm, text string) (*Reply, error) {
	switch text {
	case confirmToken:
		report, err := uc.broadcaster.Run(ctx, state.Message)
		if err != nil {
			return nil, fmt.Errorf("run broadcast: %w", err)
		}
		uc.saveState(ctx, userID, model.MainMenu{})
		return uc.sendReply(
			uc.tr.T("broadcast_done", report.Sent, report.Failed, report.Duration.String()),
			uc.mainMenuKeyboard(),
		), nil
	case cancelToken:
		uc.saveState(ctx, userID, model.MainMenu{})
		return uc.sendReply(uc.tr.T("broadcast_cancelled"), uc.mainMenuKeyboard()), nil
	default:
		metrics.IncConversationEvent(string(model.StepWaitingBroadcastConfirm), "invalid")
		return uc.sendReply(uc.tr.T("broadcast_reprompt"), nil), nil
	}
}

// renderStudentResult builds the full result card. The locally imported result
// wins; the external API is only consulted when no local result exists, and
// its failure degrades to the no-result variant of the same card.
func (uc *ConversationUseCase) renderStudentResult(ctx context.Context, examNo string) (string, [][]adapter.InlineButton, error) {
	student, err := uc.directory.FindByExamNo(ctx, examNo)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return uc.tr.T("student_not_found"), uc.backKeyboard(), nil
		}
		return "", nil, fmt.Errorf("find student %s: %w", examNo, err)
	}

	result, err := uc.directory.FindResult(ctx, examNo)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Str("examno", examNo).Msg("local result lookup failed, trying external API")
		}
		result = nil
	}
	if result == nil && uc.resultAPI != nil {
		apiResult, apiErr := uc.resultAPI.Lookup(ctx, examNo)
		if apiErr != nil {
			if !errors.Is(apiErr, domain.ErrNotFound) {
				uc.log.Warn().Err(apiErr).Str("examno", examNo).Msg("external result lookup failed")
			}
		} else {
			result = apiResult
		}
	}

	return uc.formatResultCard(student, result), uc.resultActionsKeyboard(examNo), nil
}

func (uc *ConversationUseCase) formatResultCard(student *model.Student, result *model.ExamResult) string {
	var sb strings.Builder
	sb.WriteString(uc.tr.T("result_card",
		orUnknown(student.Name), student.ExamNo, orUnknown(student.School),
		orUnknown(student.Governorate), student.GenderLabel()))

	if result == nil {
		sb.WriteString("\n\n")
		sb.WriteString(uc.tr.T("result_none"))
		return sb.String()
	}

	if len(result.Subjects) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(uc.tr.T("result_scores_header"))
		for _, sub := range result.Subjects {
			sb.WriteString("\n")
			sb.WriteString(uc.tr.T("result_score_line", sub.Name, sub.Score))
		}
	}
	if result.FinalGrad != "" {
		sb.WriteString("\n\n")
		sb.WriteString(uc.tr.T("result_final_grade", result.FinalGrad))
	}
	if result.FinalRate != "" {
		sb.WriteString("\n")
		sb.WriteString(uc.tr.T("result_final_rate", result.FinalRate))
	}
	sb.WriteString("\n")
	sb.WriteString(uc.tr.T("result_status", orUnknown(result.Status)))
	return sb.String()
}

func (uc *ConversationUseCase) formatResultList(name, governorate string, result *model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(uc.tr.T("multiple_results_header", name, governorate))
	sb.WriteString("\n")
	for i, s := range result.Students {
		sb.WriteString("\n")
		sb.WriteString(uc.tr.T("result_list_line", i+1, orUnknown(s.Name), orUnknown(s.School), s.ExamNo))
		sb.WriteString("\n")
	}
	if result.HasMore {
		sb.WriteString("\n")
		sb.WriteString(uc.tr.T("more_results", result.TotalCount))
	}
	return sb.String()
}

func (uc *ConversationUseCase) loadState(ctx context.Context, userID int64) (model.ConversationState, error) {
	session, err := uc.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return model.MainMenu{}, nil
		}
		return nil, err
	}
	if session.State == nil {
		return model.MainMenu{}, nil
	}
	return session.State, nil
}

// saveState persists the transition. Save failures are logged and swallowed:
// the user keeps the last successfully persisted state and can retry.
func (uc *ConversationUseCase) saveState(ctx context.Context, userID int64, state model.ConversationState) {
	s := model.NewSession(userID)
	s.State = state
	if err := uc.sessions.Save(ctx, s); err != nil {
		uc.log.Error().Err(err).Int64("tg_id", userID).Str("step", string(state.Step())).Msg("failed to save session state")
	}
}

func (uc *ConversationUseCase) isSubscribed(ctx context.Context, userID int64) (bool, error) {
	if uc.subs == nil {
		return true, nil
	}
	ok, err := uc.subs.IsSubscribed(ctx, userID)
	if err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", userID).Msg("subscription check failed, allowing")
		return true, nil
	}
	return ok, nil
}

func (uc *ConversationUseCase) subscriptionRequired(ev Event) *Reply {
	text := uc.tr.T("subscription_required", uc.channelName, uc.channelUser)
	keyboard := uc.subscriptionKeyboard()
	if ev.Kind == EventCallback {
		return uc.editReply(ev, text, keyboard)
	}
	return uc.sendReply(text, keyboard)
}

func (uc *ConversationUseCase) systemError(ev Event) *Reply {
	if ev.Kind == EventCallback {
		return uc.editReply(ev, uc.tr.T("system_error"), uc.errorKeyboard())
	}
	return uc.sendReply(uc.tr.T("system_error"), uc.errorKeyboard())
}

func (uc *ConversationUseCase) mainMenuReply(ev Event, text string) *Reply {
	if ev.Kind == EventCallback {
		return uc.editReply(ev, text, uc.mainMenuKeyboard())
	}
	return uc.sendReply(text, uc.mainMenuKeyboard())
}

func (uc *ConversationUseCase) sendReply(text string, keyboard [][]adapter.InlineButton) *Reply {
	return &Reply{Payload: adapter.Payload{Text: text, Keyboard: keyboard}}
}

func (uc *ConversationUseCase) editReply(ev Event, text string, keyboard [][]adapter.InlineButton) *Reply {
	return &Reply{
		Payload: adapter.Payload{Text: text, Keyboard: keyboard},
		Edit:    true,
		Ref:     ev.Ref,
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "غير متوفر"
	}
	return s
}
