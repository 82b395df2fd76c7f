package controller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/valpere/fragtran/internal/fragment"
	"github.com/valpere/fragtran/internal/store"
	"github.com/valpere/fragtran/internal/translator"
)

type response struct {
	text string
	err  error
}

// fakeBackend answers from a script (consumed call by call) or, when the
// script is empty, from a translation table. It records every request it
// receives and is safe for the concurrent retry rounds.
type fakeBackend struct {
	mu       sync.Mutex
	script   []response
	answers  map[string]string
	fail     error
	requests []translator.Request
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Translate(_ context.Context, req translator.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if len(b.script) > 0 {
		r := b.script[0]
		b.script = b.script[1:]
		return r.text, r.err
	}
	if b.fail != nil {
		return "", b.fail
	}
	if text, ok := b.answers[req.Text]; ok {
		return text, nil
	}
	return "", errors.New("no answer for: " + req.Text)
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func (b *fakeBackend) request(i int) translator.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[i]
}

type fakeMachine struct{}

func (fakeMachine) Name() string { return "fake-mt" }
func (fakeMachine) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func paragraphs(texts ...string) []*fragment.Fragment {
	out := make([]*fragment.Fragment, len(texts))
	for i, t := range texts {
		out[i] = &fragment.Fragment{
			ID:           "frag-" + string(rune('a'+i)),
			Kind:         fragment.KindParagraph,
			OriginalText: t,
		}
	}
	return out
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	frags := paragraphs("Hello.")
	tests := []struct {
		name string
		cfg  Config
	}{
		{"neither backend nor machine", Config{}},
		{"both backend and machine", Config{Backend: &fakeBackend{}, Machine: fakeMachine{}, Model: "m", TargetLang: "uk"}},
		{"backend without model", Config{Backend: &fakeBackend{}}},
		{"machine without target language", Config{Machine: fakeMachine{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Log = quietLogger()
			_, err := New(frags, tt.cfg)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("New() error = %v, want ConfigError", err)
			}
		})
	}
}

func TestRun_TranslatesBatch(t *testing.T) {
	frags := paragraphs("Hello there.", "Second sentence.")
	backend := &fakeBackend{answers: map[string]string{
		"Hello there.":     "Привіт усім.",
		"Second sentence.": "Друге речення.",
	}}

	ctrl, err := New(frags, Config{
		Backend: backend,
		Model:   "test-model",
		Log:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := ctrl.Run(context.Background(), indices(2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Total != 2 || summary.Translated != 2 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Rounds != 0 {
		t.Errorf("clean batch should need no retry rounds, got %d", summary.Rounds)
	}
	if frags[0].TranslatedText != "Привіт усім." {
		t.Errorf("terminator not reattached: %q", frags[0].TranslatedText)
	}
	if !frags[1].Translated {
		t.Error("second fragment not marked translated")
	}
}

func TestRun_NumberingPrefixReattached(t *testing.T) {
	frags := paragraphs("12. Chapter title.")
	backend := &fakeBackend{answers: map[string]string{
		"Chapter title": "Назва розділу",
	}}

	ctrl, err := New(frags, Config{Backend: backend, Model: "m", Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), indices(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := backend.request(0).Text; got != "Chapter title" {
		t.Errorf("backend received %q, want affixes stripped", got)
	}
	if frags[0].TranslatedText != "12. Назва розділу." {
		t.Errorf("TranslatedText = %q", frags[0].TranslatedText)
	}
}

func TestRun_ContextWindowSeesPriorTranslations(t *testing.T) {
	frags := paragraphs("First line.", "Second line.")
	backend := &fakeBackend{answers: map[string]string{
		"First line.":  "Перший рядок.",
		"Second line.": "Другий рядок.",
	}}

	ctrl, err := New(frags, Config{
		Backend:     backend,
		Model:       "m",
		ContextSize: 2,
		Log:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), indices(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := backend.request(0).Context; got != "" {
		t.Errorf("first fragment should have no context, got %q", got)
	}
	if got := backend.request(1).Context; got != "Перший рядок." {
		t.Errorf("second fragment's context = %q, want the first translation", got)
	}
}

func TestRun_RetriesMismatchAtRaisedTemperature(t *testing.T) {
	frags := paragraphs("Chapter 7 begins.")
	backend := &fakeBackend{script: []response{
		{text: "Розділ 8 починається."}, // wrong number, trips the detector
		{text: "Розділ 7 починається."},
	}}

	ctrl, err := New(frags, Config{
		Backend:     backend,
		Model:       "m",
		Temperature: 0.3,
		MaxAttempts: 3,
		AutoFix:     true,
		Log:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := ctrl.Run(context.Background(), indices(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", summary.Rounds)
	}
	if ctrl.Attempts(0) != 2 {
		t.Errorf("Attempts = %d, want 2", ctrl.Attempts(0))
	}
	if len(summary.Mismatched) != 0 {
		t.Errorf("Mismatched = %v, want none after the fix", summary.Mismatched)
	}
	if frags[0].TranslatedText != "Розділ 7 починається." {
		t.Errorf("TranslatedText = %q", frags[0].TranslatedText)
	}

	base := backend.request(0).Temperature
	retry := backend.request(1).Temperature
	if retry <= base {
		t.Errorf("retry temperature %v not raised above %v", retry, base)
	}
}

func TestRun_AttemptBudgetIsHard(t *testing.T) {
	frags := paragraphs("Chapter 7 begins.")
	backend := &fakeBackend{answers: map[string]string{
		"Chapter 7 begins.": "Розділ 8 починається.", // never corrects itself
	}}

	ctrl, err := New(frags, Config{
		Backend:     backend,
		Model:       "m",
		MaxAttempts: 2,
		AutoFix:     true,
		Log:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := ctrl.Run(context.Background(), indices(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if backend.calls() != 2 {
		t.Errorf("backend called %d times, want exactly MaxAttempts", backend.calls())
	}
	if summary.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", summary.Rounds)
	}
	if _, ok := summary.Mismatched[0]; !ok {
		t.Error("exhausted fragment must be reported as mismatched")
	}
	if !frags[0].Translated {
		t.Error("mismatched text is still a translation, fragment stays translated")
	}
}

func TestRun_TemperatureCappedAtOne(t *testing.T) {
	frags := paragraphs("Chapter 7 begins.")
	backend := &fakeBackend{answers: map[string]string{
		"Chapter 7 begins.": "Розділ 8 починається.",
	}}

	ctrl, err := New(frags, Config{
		Backend:     backend,
		Model:       "m",
		Temperature: 0.95,
		MaxAttempts: 3,
		AutoFix:     true,
		Log:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), indices(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if backend.calls() != 3 {
		t.Fatalf("backend called %d times, want 3", backend.calls())
	}
	if backend.request(1).Temperature != 1.0 {
		t.Errorf("first retry temperature = %v, want 1.0", backend.request(1).Temperature)
	}
	if backend.request(2).Temperature != 1.0 {
		t.Errorf("second retry temperature = %v, want 1.0", backend.request(2).Temperature)
	}
}

func TestRun_BackendErrorMarksFailed(t *testing.T) {
	frags := paragraphs("Hello there.")
	backend := &fakeBackend{fail: errors.New("backend down")}

	ctrl, err := New(frags, Config{Backend: backend, Model: "m", Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := ctrl.Run(context.Background(), indices(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Failed != 1 || summary.Translated != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if frags[0].Translated {
		t.Error("fragment must not be marked translated")
	}
	if frags[0].LastError != "backend down" {
		t.Errorf("LastError = %q", frags[0].LastError)
	}
}

func TestRun_EmptyResultIsFailure(t *testing.T) {
	frags := paragraphs("Hello there.")
	backend := &fakeBackend{answers: map[string]string{"Hello there.": "   "}}

	ctrl, err := New(frags, Config{Backend: backend, Model: "m", Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), indices(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frags[0].Translated {
		t.Error("blank result must not count as a translation")
	}
	if frags[0].LastError != translator.ErrEmptyResult.Error() {
		t.Errorf("LastError = %q", frags[0].LastError)
	}
}

func TestRun_FailedRetryKeepsPreviousTranslation(t *testing.T) {
	frags := paragraphs("Chapter 7 begins.")
	backend := &fakeBackend{script: []response{
		{text: "Розділ 8 починається."}, // mismatched but successful
		{err: errors.New("retry refused")},
	}}

	ctrl, err := New(frags, Config{
		Backend:     backend,
		Model:       "m",
		MaxAttempts: 2,
		AutoFix:     true,
		Log:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), indices(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !frags[0].Translated {
		t.Error("failed retry must not discard the earlier translation")
	}
	if frags[0].TranslatedText != "Розділ 8 починається." {
		t.Errorf("TranslatedText = %q", frags[0].TranslatedText)
	}
	if frags[0].LastError != "retry refused" {
		t.Errorf("LastError = %q", frags[0].LastError)
	}
}

func TestRun_CancellationAbandonsRun(t *testing.T) {
	frags := paragraphs("Hello there.", "Second sentence.")
	backend := &fakeBackend{answers: map[string]string{
		"Hello there.":     "Привіт усім.",
		"Second sentence.": "Друге речення.",
	}}

	ctrl, err := New(frags, Config{Backend: backend, Model: "m", Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := ctrl.Run(ctx, indices(2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if summary != nil {
		t.Error("cancelled run must not return a summary")
	}
	if backend.calls() != 0 {
		t.Errorf("backend called %d times after cancellation", backend.calls())
	}
}

func TestRun_IndexOutOfRange(t *testing.T) {
	frags := paragraphs("Hello.")
	ctrl, err := New(frags, Config{Backend: &fakeBackend{}, Model: "m", Log: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), []int{5}); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestRun_MemoryHitSkipsBackend(t *testing.T) {
	mem, err := store.New(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	ctx := context.Background()
	if err := mem.Save(ctx, "Hello there.", "en", "uk", "Привіт усім.", "test"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	frags := paragraphs("Hello there.")
	backend := &fakeBackend{}
	ctrl, err := New(frags, Config{
		Backend:    backend,
		Model:      "m",
		Memory:     mem,
		SourceLang: "en",
		TargetLang: "uk",
		Log:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := ctrl.Run(ctx, indices(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if backend.calls() != 0 {
		t.Errorf("backend called %d times despite memory hit", backend.calls())
	}
	if frags[0].TranslatedText != "Привіт усім." {
		t.Errorf("TranslatedText = %q", frags[0].TranslatedText)
	}
	if summary.Translated != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if ctrl.Attempts(0) != 0 {
		t.Errorf("memory hit must not consume an attempt, got %d", ctrl.Attempts(0))
	}
}

func TestRun_CleanSuccessRecordedInMemory(t *testing.T) {
	mem, err := store.New(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { mem.Close() })

	frags := paragraphs("Hello there.")
	backend := &fakeBackend{answers: map[string]string{"Hello there.": "Привіт усім."}}
	ctrl, err := New(frags, Config{
		Backend:    backend,
		Model:      "m",
		Memory:     mem,
		SourceLang: "en",
		TargetLang: "uk",
		Log:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := ctrl.Run(ctx, indices(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	text, ok, err := mem.Get(ctx, "Hello there.", "en", "uk")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", text, ok, err)
	}
	if text != "Привіт усім." {
		t.Errorf("memory holds %q", text)
	}
}

func TestRun_MachineTranslatorPath(t *testing.T) {
	frags := paragraphs("Hello there.")
	ctrl, err := New(frags, Config{
		Machine:    fakeMachine{},
		TargetLang: "uk",
		Log:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := ctrl.Run(context.Background(), indices(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Translated != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if frags[0].TranslatedText != "Hello there." {
		t.Errorf("TranslatedText = %q", frags[0].TranslatedText)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	frags := paragraphs("Hello there.", "Second sentence.")
	backend := &fakeBackend{answers: map[string]string{
		"Hello there.":     "Привіт усім.",
		"Second sentence.": "Друге речення.",
	}}

	var calls [][2]int
	ctrl, err := New(frags, Config{
		Backend: backend,
		Model:   "m",
		Log:     quietLogger(),
		OnProgress: func(done, total int) {
			calls = append(calls, [2]int{done, total})
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := ctrl.Run(context.Background(), indices(2)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(calls) != 2 || calls[0] != [2]int{1, 2} || calls[1] != [2]int{2, 2} {
		t.Errorf("progress calls = %v", calls)
	}
}
