// Package runner wires the full pipeline: providers -> normalizer ->
// renderer -> upsert -> write-back, plus run-state bookkeeping,
// archiving and notification.
package runner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stellarlinkco/dailylog/internal/archive"
	"github.com/stellarlinkco/dailylog/internal/clock"
	"github.com/stellarlinkco/dailylog/internal/config"
	"github.com/stellarlinkco/dailylog/internal/event"
	"github.com/stellarlinkco/dailylog/internal/markdown"
	"github.com/stellarlinkco/dailylog/internal/normalize"
	"github.com/stellarlinkco/dailylog/internal/note"
	"github.com/stellarlinkco/dailylog/internal/notify"
	"github.com/stellarlinkco/dailylog/internal/provider"
	"github.com/stellarlinkco/dailylog/internal/state"
)

// Runner executes daily log generation runs. All collaborators are
// injectable; New fills in production defaults.
type Runner struct {
	cfg      *config.Config
	loc      *time.Location
	client   *provider.Client
	docs     note.Store
	state    *state.Store
	archive  archive.Store
	notifier notify.Notifier
	now      func() time.Time
}

type Option func(*Runner)

func WithProviderClient(c *provider.Client) Option {
	return func(r *Runner) { r.client = c }
}

func WithDocumentStore(s note.Store) Option {
	return func(r *Runner) { r.docs = s }
}

// WithArchive sets the run archive; nil disables archiving.
func WithArchive(a archive.Store) Option {
	return func(r *Runner) { r.archive = a }
}

func WithNotifier(n notify.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(cfg *config.Config, st *state.Store, opts ...Option) (*Runner, error) {
	loc, err := clock.LoadLocation(cfg.Schedule.TimeZone)
	if err != nil {
		return nil, &config.ValidationError{Problems: []string{err.Error()}}
	}

	r := &Runner{
		cfg:      cfg,
		loc:      loc,
		client:   provider.NewClient(),
		docs:     note.NewFSStore(cfg.Vault.Dir),
		state:    st,
		notifier: notify.FromConfig(cfg.Notify),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ShouldRunToday is the scheduler guard: false once yesterday's log
// has been generated.
func (r *Runner) ShouldRunToday() bool {
	return !r.state.HasRun(clock.YesterdayDateKey(r.loc, r.now()))
}

func (r *Runner) providerSettings() provider.Settings {
	p := r.cfg.Providers
	return provider.Settings{
		Prompt:         r.cfg.Prompt,
		OpenAIKey:      p.OpenAI.APIKey,
		OpenAIModel:    p.OpenAI.Model,
		AnthropicKey:   p.Anthropic.APIKey,
		AnthropicModel: p.Anthropic.Model,
		GeminiKey:      p.Gemini.APIKey,
		GeminiModel:    p.Gemini.Model,
	}
}

func (r *Runner) groupWindow() time.Duration {
	minutes := r.cfg.Log.GroupWindowMinutes
	if minutes <= 0 {
		minutes = config.DefaultGroupWindowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// generate queries all configured providers and renders the block.
// Provider failures surface as rendered content, never as errors.
func (r *Runner) generate(ctx context.Context) (string, []event.NormalizedEvent) {
	events := r.client.QueryAll(ctx, r.providerSettings())
	groups := normalize.GroupByTopicWindow(events, r.groupWindow())
	lines := markdown.RenderEntries(groups, r.loc)
	block := markdown.RenderBlock(lines, r.cfg.Prompt, markdown.BlockOptions{
		Title:         r.cfg.Log.Title,
		HeadingPrefix: r.cfg.Log.HeadingPrefix,
	})
	return block, events
}

// Preview renders the block without touching any document or state.
func (r *Runner) Preview(ctx context.Context) (markdownBlock, dateKey string, err error) {
	if err := r.cfg.Validate(); err != nil {
		return "", "", err
	}
	block, _ := r.generate(ctx)
	return block, clock.YesterdayDateKey(r.loc, r.now()), nil
}

// Run executes the full pipeline. Configuration and document
// resolution failures abort with state untouched, so the next
// scheduled tick retries; provider failures degrade into rendered
// placeholder lines instead.
func (r *Runner) Run(ctx context.Context, manual bool) error {
	if err := r.cfg.Validate(); err != nil {
		r.notifyFailure(ctx, err)
		return err
	}

	dateKey := clock.YesterdayDateKey(r.loc, r.now())
	log.Printf("[runner] generating daily log for %s", dateKey)

	block, events := r.generate(ctx)

	path, err := note.ResolveDailyNote(r.docs, r.cfg.Vault.DailyFolder, r.cfg.Vault.FileNameFormat, r.now().In(r.loc))
	if err != nil {
		r.notifyFailure(ctx, err)
		return err
	}

	content, err := r.docs.Read(path)
	if err != nil {
		err = &note.ResolutionError{Path: path, Err: err}
		r.notifyFailure(ctx, err)
		return err
	}

	updated := note.Upsert(content, block, note.InsertionOptions{
		StartHeading: r.cfg.Insertion.StartHeading,
		EndHeading:   r.cfg.Insertion.EndHeading,
	})
	if err := r.docs.Write(path, updated); err != nil {
		err = fmt.Errorf("write daily note %q: %w", path, err)
		r.notifyFailure(ctx, err)
		return err
	}

	if err := r.state.MarkRun(dateKey, r.now()); err != nil {
		// The note is already updated; a state-save failure only risks
		// a duplicate run, which the upsert makes harmless.
		log.Printf("[runner] save run state: %v", err)
	}

	r.archiveRun(ctx, dateKey, block, events)

	log.Printf("[runner] inserted daily log for %s into %s", dateKey, path)
	if manual {
		if err := r.notifier.Notify(ctx, fmt.Sprintf("Inserted daily AI log for %s.", dateKey)); err != nil {
			log.Printf("[runner] notify: %v", err)
		}
	}
	return nil
}

func (r *Runner) archiveRun(ctx context.Context, dateKey, block string, events []event.NormalizedEvent) {
	if r.archive == nil {
		return
	}
	run := &archive.Run{
		DateKey:   dateKey,
		CreatedAt: r.now().UTC(),
		Markdown:  block,
		Events:    events,
	}
	if err := r.archive.RecordRun(ctx, run); err != nil {
		log.Printf("[runner] archive run: %v", err)
	}
}

func (r *Runner) notifyFailure(ctx context.Context, cause error) {
	log.Printf("[runner] run failed: %v", cause)
	if err := r.notifier.Notify(ctx, fmt.Sprintf("Daily AI log failed: %v", cause)); err != nil {
		log.Printf("[runner] notify: %v", err)
	}
}
