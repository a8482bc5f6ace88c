// File: internal/usecase/conversation_uc_test.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/infra/i18n"
)

type ucFixture struct {
	uc          *ConversationUseCase
	sessions    *memSessionRepo
	directory   *memStudentDirectory
	api         *mockResultAPI
	limiter     *fakeLimiter
	broadcaster *fakeBroadcaster
}

func newFixture(t *testing.T, opts ...func(*ucFixture)) *ucFixture {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ar")
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	f := &ucFixture{
		sessions:    newMemSessionRepo(),
		directory:   newMemStudentDirectory(),
		api:         &mockResultAPI{results: make(map[string]*model.ExamResult)},
		limiter:     newFakeLimiter(3),
		broadcaster: &fakeBroadcaster{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.uc = NewConversationUseCase(
		f.sessions, f.directory, f.api, f.limiter, nil, f.broadcaster, tr,
		ConversationConfig{AdminIDs: []int64{99}, SearchPerMinute: 3},
		testLogger(),
	)
	return f
}

func seedStudent(f *ucFixture, examNo, name, gov string) {
	f.directory.add(&model.Student{
		ExamNo:      examNo,
		Name:        name,
		Governorate: gov,
		School:      "مدرسة الرافدين",
		SexCode:     "M",
	})
}

func TestStartShowsMainMenu(t *testing.T) {
	f := newFixture(t)

	reply := f.uc.HandleInbound(context.Background(), 1, Event{Kind: EventStart})
	if reply == nil {
		t.Fatal("expected a reply")
	}
	if len(reply.Payload.Keyboard) != 2 {
		t.Fatalf("expected 2 keyboard rows, got %d", len(reply.Payload.Keyboard))
	}
	if reply.Payload.Keyboard[0][0].Data != cbByName {
		t.Fatalf("first button data = %q, want %q", reply.Payload.Keyboard[0][0].Data, cbByName)
	}
	if got := f.sessions.stateOf(1); got == nil || got.Step() != model.StepMainMenu {
		t.Fatalf("state after /start = %v, want main_menu", got)
	}
}

func TestExamNoSearchHappyPath(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "272591110430082", "أحمد علي", "بغداد")
	f.directory.addResult(&model.ExamResult{
		ExamNo:    "272591110430082",
		Status:    "ناجح",
		FinalGrad: "85.5",
		Subjects:  []model.SubjectScore{{Name: "الرياضيات", Score: "90"}},
	})

	ctx := context.Background()
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByExamNo})
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingExamNo {
		t.Fatalf("state = %v, want waiting_examno", got.Step())
	}

	// Noise around the digits is stripped before lookup.
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "272-591-110430082"})
	if !strings.Contains(reply.Payload.Text, "أحمد علي") {
		t.Fatalf("result card missing student name: %q", reply.Payload.Text)
	}
	if !strings.Contains(reply.Payload.Text, "الرياضيات") {
		t.Fatalf("result card missing subject scores: %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepMainMenu {
		t.Fatalf("state after search = %v, want main_menu", got.Step())
	}
	// Result actions: share plus new search.
	if len(reply.Payload.Keyboard) != 2 {
		t.Fatalf("expected 2 action rows, got %d", len(reply.Payload.Keyboard))
	}
	if !strings.HasPrefix(reply.Payload.Keyboard[0][0].Data, prefixShare) {
		t.Fatalf("first action = %q, want share button", reply.Payload.Keyboard[0][0].Data)
	}
}

func TestExamNoSearchInvalidInputKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByExamNo})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "12345"})
	if !strings.Contains(reply.Payload.Text, "15") {
		t.Fatalf("expected invalid-exam-number prompt, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingExamNo {
		t.Fatalf("state after invalid input = %v, want waiting_examno", got.Step())
	}
}

func TestExamNoFallsBackToExternalAPI(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "272591110430082", "أحمد علي", "بغداد")
	f.api.results["272591110430082"] = &model.ExamResult{ExamNo: "272591110430082", Status: "ناجح"}

	ctx := context.Background()
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByExamNo})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "272591110430082"})

	if f.api.calls != 1 {
		t.Fatalf("external API calls = %d, want 1", f.api.calls)
	}
	if !strings.Contains(reply.Payload.Text, "ناجح") {
		t.Fatalf("card missing API status: %q", reply.Payload.Text)
	}
}

func TestExamNoAPIFailureDegradesToNoResult(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "272591110430082", "أحمد علي", "بغداد")
	f.api.err = errors.New("upstream down")

	ctx := context.Background()
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByExamNo})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "272591110430082"})

	// Student card still shows; just no score block.
	if !strings.Contains(reply.Payload.Text, "أحمد علي") {
		t.Fatalf("expected student card, got %q", reply.Payload.Text)
	}
	if !strings.Contains(reply.Payload.Text, "لا توجد نتائج متوفرة") {
		t.Fatalf("expected no-result note, got %q", reply.Payload.Text)
	}
}

func TestRateLimitBlocksFourthSearch(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "272591110430082", "أحمد علي", "بغداد")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByExamNo})
		reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "272591110430082"})
		if strings.Contains(reply.Payload.Text, "تم تجاوز الحد") {
			t.Fatalf("search %d unexpectedly rate limited", i+1)
		}
	}

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByExamNo})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "272591110430082"})
	if !strings.Contains(reply.Payload.Text, "تم تجاوز الحد") {
		t.Fatalf("fourth search not rate limited: %q", reply.Payload.Text)
	}
	// Blocked attempts keep the user in the exam-number step.
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingExamNo {
		t.Fatalf("state after blocked search = %v, want waiting_examno", got.Step())
	}
}

func TestNameSearchRoundTrip(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "100000000000001", "محمد حسن كاظم", "بغداد")
	ctx := context.Background()

	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByName})
	// Two governorates per row plus a back row.
	if rows := len(reply.Payload.Keyboard); rows != 3 {
		t.Fatalf("governorate keyboard rows = %d, want 3", rows)
	}

	reply = f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "بغداد"})
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingName {
		t.Fatalf("state = %v, want waiting_name", got.Step())
	}
	if state, ok := f.sessions.stateOf(1).(model.WaitingName); !ok || state.Governorate != "بغداد" {
		t.Fatalf("governorate not carried in state: %+v", f.sessions.stateOf(1))
	}
	if !strings.Contains(reply.Payload.Text, "بغداد") {
		t.Fatalf("name prompt missing governorate: %q", reply.Payload.Text)
	}

	reply = f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "محمد حسن"})
	if !strings.Contains(reply.Payload.Text, "محمد حسن كاظم") {
		t.Fatalf("single match should render full card: %q", reply.Payload.Text)
	}
}

func TestNameSearchMultipleMatchesListsStudents(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "100000000000001", "علي حسين جاسم", "بغداد")
	seedStudent(f, "100000000000002", "علي حسين محمد", "بغداد")
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByName})
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "بغداد"})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "علي حسين"})

	// One select button per student plus the back row.
	if rows := len(reply.Payload.Keyboard); rows != 3 {
		t.Fatalf("selection keyboard rows = %d, want 3", rows)
	}
	for _, row := range reply.Payload.Keyboard[:2] {
		if !strings.HasPrefix(row[0].Data, prefixPick) {
			t.Fatalf("expected select button, got %q", row[0].Data)
		}
	}

	// Picking one renders the full card.
	pick := reply.Payload.Keyboard[0][0].Data
	reply = f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: pick})
	if !reply.Edit {
		t.Fatal("selection reply should edit the list message")
	}
	if !strings.Contains(reply.Payload.Text, "رقم الامتحاني") {
		t.Fatalf("expected result card, got %q", reply.Payload.Text)
	}
}

func TestNameSearchNoMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByName})
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "نينوى"})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "سارة نور"})

	if !strings.Contains(reply.Payload.Text, "لم يتم العثور") {
		t.Fatalf("expected no-results message, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepMainMenu {
		t.Fatalf("state after empty search = %v, want main_menu", got.Step())
	}
}

func TestNameSearchRejectsNonArabic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByName})
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "بغداد"})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "John Smith"})

	if !strings.Contains(reply.Payload.Text, "العربية") {
		t.Fatalf("expected invalid-name prompt, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingName {
		t.Fatalf("invalid name should not change state, got %v", got.Step())
	}
}

func TestStaleGovernorateCallbackIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventStart})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "بغداد"})

	if !strings.Contains(reply.Payload.Text, "خيار غير صحيح") {
		t.Fatalf("expected invalid-choice message, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepMainMenu {
		t.Fatalf("stale callback must not move state, got %v", got.Step())
	}
}

func TestBroadcastFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const admin = int64(99)

	reply := f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: "/broadcast"})
	if !strings.Contains(reply.Payload.Text, "أرسل") {
		t.Fatalf("expected broadcast prompt, got %q", reply.Payload.Text)
	}

	reply = f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: "نتائج الدور الأول متاحة الآن"})
	if got := f.sessions.stateOf(admin); got.Step() != model.StepWaitingBroadcastConfirm {
		t.Fatalf("state = %v, want waiting_broadcast_confirm", got.Step())
	}
	if !strings.Contains(reply.Payload.Text, "نتائج الدور الأول متاحة الآن") {
		t.Fatalf("confirm preview missing message body: %q", reply.Payload.Text)
	}

	// Anything but the confirm/cancel tokens re-prompts without losing the draft.
	reply = f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: "ok"})
	if got := f.sessions.stateOf(admin); got.Step() != model.StepWaitingBroadcastConfirm {
		t.Fatalf("reprompt must keep state, got %v", got.Step())
	}

	reply = f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: confirmToken})
	if f.broadcaster.lastMsg != "نتائج الدور الأول متاحة الآن" {
		t.Fatalf("broadcast ran with %q", f.broadcaster.lastMsg)
	}
	if !strings.Contains(reply.Payload.Text, "اكتمل الإرسال") {
		t.Fatalf("expected completion report, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(admin); got.Step() != model.StepMainMenu {
		t.Fatalf("state after broadcast = %v, want main_menu", got.Step())
	}
}

func TestBroadcastCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const admin = int64(99)

	f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: "/broadcast"})
	f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: "مسودة"})
	reply := f.uc.HandleInbound(ctx, admin, Event{Kind: EventText, Text: cancelToken})

	if !strings.Contains(reply.Payload.Text, "إلغاء") {
		t.Fatalf("expected cancellation message, got %q", reply.Payload.Text)
	}
	if f.broadcaster.lastMsg != "" {
		t.Fatalf("cancelled broadcast must not run, ran with %q", f.broadcaster.lastMsg)
	}
}

func TestBroadcastCommandIgnoredMidFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 99, Event{Kind: EventCallback, Data: cbByExamNo})
	reply := f.uc.HandleInbound(ctx, 99, Event{Kind: EventText, Text: broadcastCommand})

	if !strings.Contains(reply.Payload.Text, "رقم امتحاني غير صحيح") {
		t.Fatalf("mid-flow command must be treated as step input, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(99); got.Step() != model.StepWaitingExamNo {
		t.Fatalf("state = %v, want waiting_examno", got.Step())
	}
}

func TestBroadcastRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "/broadcast"})
	if !strings.Contains(reply.Payload.Text, "للمشرفين فقط") {
		t.Fatalf("expected unauthorized message, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got != nil && got.Step() == model.StepWaitingBroadcastBody {
		t.Fatal("non-admin must not enter broadcast flow")
	}
}

func TestDirectoryErrorYieldsSystemErrorWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	f.directory.searchErr = errors.New("db down")
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByName})
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "بغداد"})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "محمد حسن"})

	if !strings.Contains(reply.Payload.Text, "خطأ") {
		t.Fatalf("expected system-error message, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingName {
		t.Fatalf("failed search must keep state, got %v", got.Step())
	}
}

func TestSingleNameMatchLookupFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "272591110430082", "أحمد علي", "بغداد")
	f.directory.findErr = errors.New("db down")
	ctx := context.Background()

	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbByName})
	f.uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: prefixGov + "بغداد"})
	reply := f.uc.HandleInbound(ctx, 1, Event{Kind: EventText, Text: "أحمد علي"})

	if !strings.Contains(reply.Payload.Text, "خطأ") {
		t.Fatalf("expected system-error message, got %q", reply.Payload.Text)
	}
	if got := f.sessions.stateOf(1); got.Step() != model.StepWaitingName {
		t.Fatalf("failed single-match lookup must keep state, got %v", got.Step())
	}
}

func TestSessionSaveFailureStillReplies(t *testing.T) {
	f := newFixture(t)
	f.sessions.saveErr = errors.New("write failed")

	reply := f.uc.HandleInbound(context.Background(), 1, Event{Kind: EventStart})
	if reply == nil || reply.Payload.Text == "" {
		t.Fatal("save failure must not suppress the reply")
	}
}

func TestShareCallback(t *testing.T) {
	f := newFixture(t)
	seedStudent(f, "272591110430082", "أحمد علي", "بغداد")

	reply := f.uc.HandleInbound(context.Background(), 1, Event{Kind: EventCallback, Data: prefixShare + "272591110430082"})
	if !strings.Contains(reply.Payload.Text, "أحمد علي") || !strings.Contains(reply.Payload.Text, "272591110430082") {
		t.Fatalf("share message incomplete: %q", reply.Payload.Text)
	}
	if reply.Edit {
		t.Fatal("share must send a fresh message, not edit the card")
	}
}

func TestSubscriptionGate(t *testing.T) {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ar")
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	sessions := newMemSessionRepo()
	subs := &fakeSubChecker{subscribed: map[int64]bool{}}
	uc := NewConversationUseCase(
		sessions, newMemStudentDirectory(), nil, newFakeLimiter(100), subs, &fakeBroadcaster{}, tr,
		ConversationConfig{ChannelTitle: "قناة النتائج", ChannelUsername: "results_channel"},
		testLogger(),
	)
	ctx := context.Background()

	reply := uc.HandleInbound(ctx, 1, Event{Kind: EventStart})
	if !strings.Contains(reply.Payload.Text, "قناة النتائج") {
		t.Fatalf("expected subscription prompt, got %q", reply.Payload.Text)
	}
	if reply.Payload.Keyboard[0][0].URL != "https://t.me/results_channel" {
		t.Fatalf("subscribe button URL = %q", reply.Payload.Keyboard[0][0].URL)
	}

	// Member now; check button unlocks the menu.
	subs.mu.Lock()
	subs.subscribed[1] = true
	subs.mu.Unlock()
	reply = uc.HandleInbound(ctx, 1, Event{Kind: EventCallback, Data: cbCheckSub})
	if !strings.Contains(reply.Payload.Text, "شكراً") {
		t.Fatalf("expected success message, got %q", reply.Payload.Text)
	}
}

func TestSubscriptionCheckerFailureAllows(t *testing.T) {
	tr, _ := i18n.NewTranslator(i18n.LocalesFS, "ar")
	subs := &fakeSubChecker{err: errors.New("telegram api down")}
	uc := NewConversationUseCase(
		newMemSessionRepo(), newMemStudentDirectory(), nil, newFakeLimiter(100), subs, &fakeBroadcaster{}, tr,
		ConversationConfig{}, testLogger(),
	)

	reply := uc.HandleInbound(context.Background(), 1, Event{Kind: EventStart})
	if len(reply.Payload.Keyboard) != 2 {
		t.Fatalf("checker failure must fail open to the menu, got %q", reply.Payload.Text)
	}
}
