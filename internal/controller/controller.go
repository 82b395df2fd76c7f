// Package controller drives the translate-check-retry loop over a fragment
// list. A batch is dispatched sequentially so each fragment's context window
// sees the freshest translations; fragments whose results trip the mismatch
// detector are retried concurrently at a raised temperature until they pass
// or exhaust their attempt budget.
package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/valpere/fragtran/internal/fragment"
	"github.com/valpere/fragtran/internal/mismatch"
	"github.com/valpere/fragtran/internal/prompt"
	"github.com/valpere/fragtran/internal/store"
	"github.com/valpere/fragtran/internal/translator"
)

// ConfigError reports a configuration problem that blocks a batch before any
// fragment is dispatched.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Reason }

// Config carries everything one translation run needs.
type Config struct {
	// Backend is the LLM service; Machine is a plain translation API.
	// Exactly one of them must be set.
	Backend translator.Backend
	Machine translator.MachineTranslator

	// Memory is the optional translation memory; nil disables it.
	Memory *store.Store

	SourceLang string
	TargetLang string

	Model       string
	Temperature float64

	// ContextSize is how many preceding fragments accompany each request.
	ContextSize int
	// MaxAttempts bounds total tries per fragment, the first included.
	MaxAttempts int

	Instruction string
	Prompts     prompt.Set

	// AutoFix enables the retry rounds after the batch.
	AutoFix bool

	Log *logrus.Logger

	// OnProgress, when set, is called after every settled fragment with the
	// number completed and the batch total.
	OnProgress func(done, total int)
}

// Summary reports the outcome of one Run.
type Summary struct {
	Total      int
	Translated int
	Failed     int
	Rounds     int
	// Mismatched maps fragment index to the joined mismatch reasons that
	// remained after all retries.
	Mismatched map[int]string
}

// event is one settled backend call, delivered to the run loop which alone
// mutates fragments.
type event struct {
	index int
	text  string
	err   error
}

// Controller owns a fragment list addressed by index for the lifetime of a
// document session.
type Controller struct {
	cfg       Config
	fragments []*fragment.Fragment
	attempts  []int
}

// New validates cfg and returns a controller over fragments.
func New(fragments []*fragment.Fragment, cfg Config) (*Controller, error) {
	if (cfg.Backend == nil) == (cfg.Machine == nil) {
		return nil, &ConfigError{Reason: "exactly one of an LLM backend or a machine translator must be configured"}
	}
	if cfg.Backend != nil && cfg.Model == "" {
		return nil, &ConfigError{Reason: "no model configured for backend " + cfg.Backend.Name()}
	}
	if cfg.Machine != nil && cfg.TargetLang == "" {
		return nil, &ConfigError{Reason: "no target language configured for " + cfg.Machine.Name()}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.ContextSize < 0 {
		cfg.ContextSize = 0
	}
	if cfg.Log == nil {
		cfg.Log = logrus.New()
	}
	return &Controller{
		cfg:       cfg,
		fragments: fragments,
		attempts:  make([]int, len(fragments)),
	}, nil
}

// Run translates the fragments named by indices. The batch is sequential;
// when AutoFix is on, mismatched fragments are then retried in rounds until
// every one passes or runs out of attempts. Cancellation abandons the run and
// returns ctx.Err() with no summary; fragment state already written stays.
func (c *Controller) Run(ctx context.Context, indices []int) (*Summary, error) {
	for _, i := range indices {
		if i < 0 || i >= len(c.fragments) {
			return nil, fmt.Errorf("fragment index %d out of range", i)
		}
		c.attempts[i] = 0
	}

	summary := &Summary{Total: len(indices), Mismatched: make(map[int]string)}
	done := 0

	for _, i := range indices {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		f := c.fragments[i]
		if cached, ok := c.fromMemory(ctx, f); ok {
			f.SetTranslated(cached)
			done++
			c.progress(done, len(indices))
			continue
		}

		c.attempts[i]++
		text, err := c.translate(ctx, i, c.cfg.Temperature)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.apply(ctx, i, text, err)
		done++
		c.progress(done, len(indices))
	}

	retry := c.mismatchedUnderBudget(indices)
	temp := c.cfg.Temperature

	for c.cfg.AutoFix && len(retry) > 0 {
		summary.Rounds++
		temp = raise(temp)

		events := make(chan event, len(retry))
		for _, i := range retry {
			c.attempts[i]++
			// Context is snapshotted here so the goroutine never reads
			// fragments concurrently with the loop below.
			req := c.buildRequest(i, temp)
			go func(i int, req translator.Request) {
				text, err := c.call(ctx, req, c.fragments[i].OriginalText)
				events <- event{index: i, text: text, err: err}
			}(i, req)
		}

		for range retry {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case ev := <-events:
				c.apply(ctx, ev.index, ev.text, ev.err)
			}
		}

		retry = c.mismatchedUnderBudget(indices)
	}

	for _, i := range indices {
		f := c.fragments[i]
		if f.Translated {
			summary.Translated++
		} else {
			summary.Failed++
		}
		if reasons := mismatch.Reasons(mismatch.Check(f)); reasons != "" {
			summary.Mismatched[i] = reasons
		}
	}
	return summary, nil
}

// Attempts reports how many tries fragment i has consumed in the current run.
func (c *Controller) Attempts(i int) int { return c.attempts[i] }

// mismatchedUnderBudget returns the indices still tripping the detector that
// have attempts left.
func (c *Controller) mismatchedUnderBudget(indices []int) []int {
	var out []int
	for _, i := range indices {
		f := c.fragments[i]
		findings := mismatch.Check(f)
		if len(findings) == 0 {
			continue
		}
		if c.attempts[i] >= c.cfg.MaxAttempts {
			continue
		}
		c.cfg.Log.WithFields(logrus.Fields{
			"fragment": f.ID,
			"attempt":  c.attempts[i],
			"reasons":  mismatch.Reasons(findings),
		}).Info("translation mismatched, scheduling retry")
		out = append(out, i)
	}
	return out
}

// translate runs one synchronous call for fragment i with the context built
// from the current fragment state.
func (c *Controller) translate(ctx context.Context, i int, temp float64) (string, error) {
	req := c.buildRequest(i, temp)
	return c.call(ctx, req, c.fragments[i].OriginalText)
}

// buildRequest snapshots the context window and wraps it with the prompt
// parameters for fragment i.
func (c *Controller) buildRequest(i int, temp float64) translator.Request {
	f := c.fragments[i]
	_, core, _ := prompt.SplitAffixes(f.OriginalText)
	return translator.Request{
		Instruction: c.cfg.Instruction,
		Context:     c.contextWindow(i),
		Text:        core,
		Model:       c.cfg.Model,
		Temperature: temp,
		Prompts:     c.cfg.Prompts,
	}
}

// call performs the backend call and reattaches the affixes split off the
// original text. An empty result is a failure.
func (c *Controller) call(ctx context.Context, req translator.Request, original string) (string, error) {
	prefix, _, suffix := prompt.SplitAffixes(original)

	var text string
	var err error
	if c.cfg.Backend != nil {
		text, err = c.cfg.Backend.Translate(ctx, req)
	} else {
		text, err = c.cfg.Machine.Translate(ctx, req.Text, c.cfg.SourceLang, c.cfg.TargetLang)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", translator.ErrEmptyResult
	}
	return prefix + text + suffix, nil
}

// apply is the single place fragment state changes during a run. Successes
// that pass the detector are recorded in the translation memory.
func (c *Controller) apply(ctx context.Context, i int, text string, err error) {
	f := c.fragments[i]
	if err != nil {
		c.cfg.Log.WithFields(logrus.Fields{
			"fragment": f.ID,
			"attempt":  c.attempts[i],
		}).WithError(err).Warn("translation attempt failed")
		f.SetFailed(err.Error())
		return
	}
	f.SetTranslated(text)
	if c.cfg.Memory != nil && len(mismatch.Check(f)) == 0 {
		if err := c.cfg.Memory.Save(ctx, f.OriginalText, c.cfg.SourceLang, c.cfg.TargetLang, text, c.providerName()); err != nil {
			c.cfg.Log.WithError(err).Warn("failed to record translation memory entry")
		}
	}
}

// fromMemory consults the translation memory for an exact hit.
func (c *Controller) fromMemory(ctx context.Context, f *fragment.Fragment) (string, bool) {
	if c.cfg.Memory == nil {
		return "", false
	}
	text, ok, err := c.cfg.Memory.Get(ctx, f.OriginalText, c.cfg.SourceLang, c.cfg.TargetLang)
	if err != nil {
		c.cfg.Log.WithError(err).Warn("translation memory lookup failed")
		return "", false
	}
	if ok {
		c.cfg.Log.WithField("fragment", f.ID).Debug("translation memory hit")
	}
	return text, ok
}

// contextWindow joins the current text of the ContextSize fragments before i.
func (c *Controller) contextWindow(i int) string {
	if c.cfg.ContextSize <= 0 {
		return ""
	}
	start := i - c.cfg.ContextSize
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, i-start)
	for _, f := range c.fragments[start:i] {
		parts = append(parts, f.CurrentText())
	}
	return strings.Join(parts, "\n")
}

func (c *Controller) providerName() string {
	if c.cfg.Backend != nil {
		return c.cfg.Backend.Name()
	}
	return c.cfg.Machine.Name()
}

func (c *Controller) progress(done, total int) {
	if c.cfg.OnProgress != nil {
		c.cfg.OnProgress(done, total)
	}
}

// raise bumps the retry temperature one notch, capped at 1.0.
func raise(temp float64) float64 {
	temp += 0.1
	if temp > 1.0 {
		return 1.0
	}
	return temp
}
