package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebk/weather-bot/internal/dialog"
	"github.com/glebk/weather-bot/internal/domain"
	"github.com/glebk/weather-bot/internal/weather"
)

type fakeSubscribers struct {
	subs []domain.Subscriber
	err  error
}

func (f *fakeSubscribers) ListSubscribed(ctx context.Context) ([]domain.Subscriber, error) {
	return f.subs, f.err
}

type fakeWeather struct {
	mu    sync.Mutex
	fail  map[float64]bool
	calls int
}

func (f *fakeWeather) CurrentByCoordinate(ctx context.Context, c domain.Coordinate) (*weather.Current, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail[c.Lat] {
		return nil, fmt.Errorf("current weather: %w", domain.ErrUpstreamUnavailable)
	}
	return &weather.Current{
		Name:    fmt.Sprintf("Lat %.0f", c.Lat),
		Main:    &weather.MainBlock{Temp: c.Lat},
		Weather: []weather.Condition{{Description: "clear sky"}},
	}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent map[int64]string
	fail map[int64]bool
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, r dialog.Reply) (dialog.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return dialog.MessageRef{}, errors.New("bot was blocked by the user")
	}
	if f.sent == nil {
		f.sent = make(map[int64]string)
	}
	f.sent[chatID] = r.Text
	return dialog.MessageRef{ChatID: chatID, MessageID: 1}, nil
}

func (f *fakeSender) recipients() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.sent {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type fakePruner struct {
	olderThan time.Duration
	removed   int64
	err       error
}

func (f *fakePruner) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.removed, f.err
}

func threeSubscribers() *fakeSubscribers {
	return &fakeSubscribers{subs: []domain.Subscriber{
		{UserID: 1, Location: domain.Coordinate{Lat: 10, Lon: 1}},
		{UserID: 2, Location: domain.Coordinate{Lat: 20, Lon: 2}},
		{UserID: 3, Location: domain.Coordinate{Lat: 30, Lon: 3}},
	}}
}

func newTestNotifier(t *testing.T, subs Subscribers, w CurrentWeather, out Sender, opts Options) *Notifier {
	t.Helper()
	if opts.Interval == 0 {
		opts.Interval = 2 * time.Hour
	}
	n, err := NewNotifier(subs, w, out, nil, opts, nil)
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}
	return n
}

func TestRunCycle_IsolatesFailingUser(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			w := &fakeWeather{fail: map[float64]bool{20: true}}
			out := &fakeSender{}
			n := newTestNotifier(t, threeSubscribers(), w, out, Options{Concurrency: concurrency})

			report := n.RunCycle(context.Background())

			if report.Delivered != 2 || report.Failed != 1 || report.Skipped != 0 {
				t.Errorf("report = %+v, want 2 delivered, 1 failed", report)
			}
			if got := out.recipients(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
				t.Errorf("recipients = %v, want [1 3]", got)
			}
			if w.calls != 3 {
				t.Errorf("weather calls = %d, want 3", w.calls)
			}
			if report.ID == "" {
				t.Error("cycle has no id")
			}
		})
	}
}

func TestRunCycle_DeliveryFailureContinues(t *testing.T) {
	out := &fakeSender{fail: map[int64]bool{1: true}}
	n := newTestNotifier(t, threeSubscribers(), &fakeWeather{}, out, Options{Concurrency: 2})

	report := n.RunCycle(context.Background())

	if report.Delivered != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 2 delivered, 1 failed", report)
	}
	if text := out.sent[3]; !strings.Contains(text, "Weather update") || !strings.Contains(text, "Lat 30") {
		t.Errorf("notification text = %q", text)
	}
}

func TestRunCycle_ListFailure(t *testing.T) {
	subs := &fakeSubscribers{err: fmt.Errorf("list: %w", domain.ErrPersistence)}
	w := &fakeWeather{}
	n := newTestNotifier(t, subs, w, &fakeSender{}, Options{})

	report := n.RunCycle(context.Background())

	if report.Delivered != 0 || report.Failed != 0 || w.calls != 0 {
		t.Errorf("report = %+v, calls = %d, want an empty cycle", report, w.calls)
	}
}

func TestRunCycle_OutsideNotifyHours(t *testing.T) {
	w := &fakeWeather{}
	out := &fakeSender{}
	n := newTestNotifier(t, threeSubscribers(), w, out, Options{
		NotifyHour: func(time.Time) bool { return false },
	})

	report := n.RunCycle(context.Background())

	if report.Skipped != 3 || report.Delivered != 0 {
		t.Errorf("report = %+v, want 3 skipped", report)
	}
	if w.calls != 0 || len(out.recipients()) != 0 {
		t.Errorf("calls = %d, recipients = %v, want none", w.calls, out.recipients())
	}
}

func TestRunCycle_CancelledContext(t *testing.T) {
	w := &fakeWeather{}
	n := newTestNotifier(t, threeSubscribers(), w, &fakeSender{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := n.RunCycle(ctx)

	if report.Failed != 3 || w.calls != 0 {
		t.Errorf("report = %+v, calls = %d, want all failed without upstream calls", report, w.calls)
	}
}

func TestNewNotifier_InvalidInterval(t *testing.T) {
	if _, err := NewNotifier(&fakeSubscribers{}, &fakeWeather{}, &fakeSender{}, nil, Options{}, nil); err == nil {
		t.Error("NewNotifier() with zero interval error = nil")
	}
}

func TestSweepJob(t *testing.T) {
	p := &fakePruner{removed: 5}
	n, err := NewNotifier(&fakeSubscribers{}, &fakeWeather{}, &fakeSender{}, p,
		Options{Interval: time.Hour, SweepAge: 24 * time.Hour}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(n.cron.Entries()); got != 2 {
		t.Fatalf("cron entries = %d, want notify and sweep", got)
	}

	n.sweepJob()
	if p.olderThan != 24*time.Hour {
		t.Errorf("Prune(olderThan) = %v, want 24h", p.olderThan)
	}
}

func TestSweepJob_DisabledWhenAgeZero(t *testing.T) {
	n, err := NewNotifier(&fakeSubscribers{}, &fakeWeather{}, &fakeSender{}, &fakePruner{},
		Options{Interval: time.Hour}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(n.cron.Entries()); got != 1 {
		t.Errorf("cron entries = %d, want only the notify job", got)
	}
}

func TestNotifier_StartStop(t *testing.T) {
	n := newTestNotifier(t, threeSubscribers(), &fakeWeather{}, &fakeSender{}, Options{})
	n.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
