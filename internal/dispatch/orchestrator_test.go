package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/models"
	"github.com/good-yellow-bee/staleguard/internal/notifier"
	"github.com/good-yellow-bee/staleguard/internal/recipients"
)

// Wednesday, inside business hours.
var baseTime = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	entities []*models.TrackedEntity
	err      error
}

func (f *fakeSource) ListActive(ctx context.Context) ([]*models.TrackedEntity, error) {
	return f.entities, f.err
}

type fakeLedger struct {
	mu        sync.Mutex
	entries   []*models.AlertHistoryEntry
	createErr error
}

func (f *fakeLedger) Create(ctx context.Context, e *models.AlertHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLedger) LastForRule(ctx context.Context, entityID string, threshold int) (*models.AlertHistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *models.AlertHistoryEntry
	for _, e := range f.entries {
		if e.EntityID == entityID && e.DayThreshold == threshold {
			if last == nil || e.SentAt.After(last.SentAt) {
				last = e
			}
		}
	}
	return last, nil
}

type fakeNotifier struct {
	name     string
	mu       sync.Mutex
	messages []*notifier.Message
	err      error
	// entered and release let a test hold a send open.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeNotifier) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeNotifier) Send(ctx context.Context, msg *notifier.Message) error {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) sent() []*notifier.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*notifier.Message(nil), f.messages...)
}

type panickyResolver struct {
	inner *recipients.Resolver
	owner string
}

func (p *panickyResolver) Resolve(class alerting.RecipientClass, owner string) []string {
	if owner == p.owner {
		panic("resolver exploded")
	}
	return p.inner.Resolve(class, owner)
}

// brokenComposer fails to render one threshold and counts render calls.
type brokenComposer struct {
	Composer
	threshold int
	mu        sync.Mutex
	calls     int
}

func (b *brokenComposer) Compose(rule *alerting.Rule, data *alerting.RenderData) (*notifier.Message, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if rule.DayThreshold == b.threshold {
		return nil, errors.New("template: unexpected EOF")
	}
	return b.Composer.Compose(rule, data)
}

func (b *brokenComposer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type harness struct {
	orch     *Orchestrator
	source   *fakeSource
	ledger   *fakeLedger
	notifier *fakeNotifier
	store    *alerting.MemoryStateStore
}

func testDirectory() recipients.Directory {
	return recipients.Directory{
		ProjectManagers: []string{"pm@example.com"},
		Controllers:     []string{"ctrl@example.com"},
	}
}

func newHarness(t *testing.T, entities ...*models.TrackedEntity) *harness {
	t.Helper()

	templates, err := notifier.LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}

	h := &harness{
		source:   &fakeSource{entities: entities},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		store:    alerting.NewMemoryStateStore(),
	}
	controller := alerting.NewController(h.store, h.ledger, &alerting.ControllerOptions{
		DailyCap:      alerting.DefaultDailyCap,
		BusinessHours: alerting.DefaultBusinessHours(time.UTC),
		Now:           func() time.Time { return baseTime },
	})

	h.orch, err = New(Options{
		Catalog:    alerting.NewCatalogHolder(alerting.DefaultCatalog()),
		Controller: controller,
		Source:     h.source,
		Resolver:   recipients.NewResolver(testDirectory()),
		Notifier:   h.notifier,
		Composer:   templates,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

// setClock replaces the harness controller with one reading now().
func (h *harness) setClock(now func() time.Time) {
	h.orch.controller = alerting.NewController(h.store, h.ledger, &alerting.ControllerOptions{
		DailyCap:      alerting.DefaultDailyCap,
		BusinessHours: alerting.DefaultBusinessHours(time.UTC),
		Now:           now,
	})
}

func testEntity(id string, ageDays int) *models.TrackedEntity {
	moved := baseTime.Add(-time.Duration(ageDays) * 24 * time.Hour)
	return &models.TrackedEntity{
		ID:             id,
		Client:         "Acme",
		Owner:          "dana",
		Status:         "sent",
		LastMovementAt: &moved,
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestRunSendsMostUrgentFirst(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 30))

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.EntitiesProcessed != 1 {
		t.Errorf("expected 1 entity processed, got %d", sum.EntitiesProcessed)
	}
	if sum.Sent != 3 {
		t.Errorf("expected 3 alerts sent (daily cap), got %d", sum.Sent)
	}
	if sum.Skipped != 2 || sum.SkipReasons["daily_cap"] != 2 {
		t.Errorf("expected 2 daily_cap skips, got %d %v", sum.Skipped, sum.SkipReasons)
	}
	if sum.Errors != 0 || sum.Degraded || sum.Aborted {
		t.Errorf("unexpected summary flags: %+v", sum)
	}

	msgs := h.notifier.sent()
	wantThresholds := []int{30, 28, 21}
	if len(msgs) != len(wantThresholds) {
		t.Fatalf("expected %d messages, got %d", len(wantThresholds), len(msgs))
	}
	for i, want := range wantThresholds {
		if msgs[i].DayThreshold != want {
			t.Errorf("message %d: threshold = %d, want %d", i, msgs[i].DayThreshold, want)
		}
	}
	if msgs[0].Level != models.LevelCritical {
		t.Errorf("expected critical first, got %s", msgs[0].Level)
	}
	if len(msgs[0].Recipients) != 2 {
		t.Errorf("expected PM and controller for critical rule, got %v", msgs[0].Recipients)
	}
	if len(h.ledger.entries) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(h.ledger.entries))
	}
}

func TestRunSecondRunIsThrottled(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 30))

	if _, err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Sent != 0 {
		t.Errorf("expected no sends on immediate rerun, got %d", sum.Sent)
	}
	if sum.Skipped != 5 {
		t.Errorf("expected all 5 rules skipped, got %d", sum.Skipped)
	}
	if last := h.orch.LastRun(); last == nil || last.RunID != sum.RunID {
		t.Error("expected LastRun to return the latest summary")
	}
}

func TestRunSkipsYoungEntities(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 6), testEntity("INV-2", 7))

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.EntitiesProcessed != 1 {
		t.Errorf("expected only the 7-day entity processed, got %d", sum.EntitiesProcessed)
	}
	if sum.Sent != 1 {
		t.Errorf("expected one info alert, got %d", sum.Sent)
	}
}

func TestRunNoRecipients(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 21))
	h.orch.resolver = recipients.NewResolver(recipients.Directory{})

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 0 || sum.SkipReasons["no_recipients"] != 3 {
		t.Errorf("expected 3 no_recipients skips, got sent=%d reasons=%v", sum.Sent, sum.SkipReasons)
	}
	if len(h.notifier.sent()) != 0 {
		t.Error("expected no notifier calls")
	}
}

func TestRunNotifierFailureRecordsNothing(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 14))
	h.notifier.err = errors.New("smtp down")

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Errors != 2 || sum.Sent != 0 {
		t.Errorf("expected 2 errors and no sends, got errors=%d sent=%d", sum.Errors, sum.Sent)
	}
	if _, err := h.store.Get(context.Background(), "INV-1"); !errors.Is(err, alerting.ErrStateNotFound) {
		t.Errorf("expected no state after failed sends, got %v", err)
	}
	if len(h.ledger.entries) != 0 {
		t.Errorf("expected no history after failed sends, got %d", len(h.ledger.entries))
	}
}

func TestRunHistoryWriteFailure(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 7))
	h.ledger.createErr = errors.New("disk full")

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 1 || sum.Errors != 1 {
		t.Errorf("expected sent=1 errors=1, got sent=%d errors=%d", sum.Sent, sum.Errors)
	}
}

func TestRunSourceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("connection refused")

	sum, err := h.orch.Run(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if !sum.Degraded {
		t.Error("expected degraded summary")
	}
	if sum.EntitiesProcessed != 0 || sum.Sent != 0 {
		t.Errorf("expected empty summary, got %+v", sum)
	}
}

func TestRunInProgress(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 7))
	h.notifier.entered = make(chan struct{})
	h.notifier.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Run(context.Background())
		done <- err
	}()

	<-h.notifier.entered
	if _, err := h.orch.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	close(h.notifier.release)

	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestRunAbortedOnCancel(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 30), testEntity("INV-2", 30))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Aborted {
		t.Error("expected aborted summary")
	}
	if sum.EntitiesProcessed != 0 {
		t.Errorf("expected no entities processed, got %d", sum.EntitiesProcessed)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	bad := testEntity("INV-1", 7)
	bad.Owner = "boom"
	h := newHarness(t, bad, testEntity("INV-2", 7))
	h.orch.resolver = &panickyResolver{inner: recipients.NewResolver(testDirectory()), owner: "boom"}

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Errors != 1 {
		t.Errorf("expected 1 error from panic, got %d", sum.Errors)
	}
	if sum.Sent != 1 {
		t.Errorf("expected the healthy entity to be alerted, got %d", sum.Sent)
	}
}

func TestRunOutsideBusinessHours(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 30))
	saturday := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	h.orch.controller = alerting.NewController(h.store, h.ledger, &alerting.ControllerOptions{
		DailyCap:      alerting.DefaultDailyCap,
		BusinessHours: alerting.DefaultBusinessHours(time.UTC),
		Now:           func() time.Time { return saturday },
	})

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Sent != 1 {
		t.Errorf("expected only the critical alert on a weekend, got %d", sum.Sent)
	}
	if sum.SkipReasons["outside_business_hours"] != 4 {
		t.Errorf("expected 4 business-hours skips, got %v", sum.SkipReasons)
	}
}

func TestRunMirrorFailureStillRecordsSend(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 35))
	email := &fakeNotifier{name: "email"}
	slack := &fakeNotifier{name: "slack", err: errors.New("webhook returned 500")}
	d := notifier.NewDispatcher(nil)
	d.Register(email)
	d.RegisterMirror(slack)
	h.orch.notifier = d

	clock := baseTime
	h.setClock(func() time.Time { return clock })

	var sent, errs int
	for i := 0; i < 4; i++ {
		sum, err := h.orch.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		sent += sum.Sent
		errs += sum.Errors
		clock = clock.Add(time.Hour)
	}

	if got := len(email.sent()); got != alerting.DefaultDailyCap {
		t.Errorf("expected %d emails in one day, got %d", alerting.DefaultDailyCap, got)
	}
	if sent != alerting.DefaultDailyCap {
		t.Errorf("expected %d recorded sends, got %d", alerting.DefaultDailyCap, sent)
	}
	if errs != 0 {
		t.Errorf("expected mirror failures not to count as errors, got %d", errs)
	}
	if len(h.ledger.entries) != alerting.DefaultDailyCap {
		t.Errorf("expected %d history entries, got %d", alerting.DefaultDailyCap, len(h.ledger.entries))
	}
}

func TestRunToleratesSchedulerJitter(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 35))

	// Monday's tick fires 40ms late, Tuesday's only 10ms late.
	monday := time.Date(2026, 3, 16, 9, 5, 0, 40*int(time.Millisecond), time.UTC)
	tuesday := time.Date(2026, 3, 17, 9, 5, 0, 10*int(time.Millisecond), time.UTC)

	h.setClock(func() time.Time { return monday })
	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("monday run: %v", err)
	}
	if sum.Sent != alerting.DefaultDailyCap {
		t.Fatalf("expected %d sends on monday, got %d", alerting.DefaultDailyCap, sum.Sent)
	}

	h.setClock(func() time.Time { return tuesday })
	if _, err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("tuesday run: %v", err)
	}
	msgs := h.notifier.sent()
	if len(msgs) <= alerting.DefaultDailyCap {
		t.Fatalf("expected sends on tuesday, got %d messages in total", len(msgs))
	}
	if first := msgs[alerting.DefaultDailyCap]; first.DayThreshold != alerting.CriticalThresholdDays {
		t.Errorf("expected the daily critical alert first on tuesday, got threshold %d", first.DayThreshold)
	}
}

func TestRunThrottledRulesAreNotRendered(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 30))

	if _, err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	composer := &brokenComposer{Composer: h.orch.composer, threshold: 30}
	h.orch.composer = composer

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Errors != 0 {
		t.Errorf("expected no render errors for throttled rules, got %d", sum.Errors)
	}
	if composer.count() != 0 {
		t.Errorf("expected no render calls, got %d", composer.count())
	}
	if sum.Skipped != 5 {
		t.Errorf("expected all 5 rules skipped, got %d", sum.Skipped)
	}
}

func TestRunRenderFailureRecordsNothing(t *testing.T) {
	h := newHarness(t, testEntity("INV-1", 7))
	h.orch.composer = &brokenComposer{Composer: h.orch.composer, threshold: 7}

	sum, err := h.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Errors != 1 || sum.Sent != 0 {
		t.Errorf("expected errors=1 sent=0, got errors=%d sent=%d", sum.Errors, sum.Sent)
	}
	if len(h.notifier.sent()) != 0 {
		t.Error("expected no notifier calls")
	}
	if len(h.ledger.entries) != 0 {
		t.Errorf("expected no history, got %d", len(h.ledger.entries))
	}
}
