// Package watchdog restarts the process when a critical task stops making
// progress. Tasks kick a Beacon; the watchdog pets the systemd watchdog
// only while every beacon is fresh. Outside systemd an expired beacon
// calls OnExpire, which exits the process by default.
package watchdog

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/temoto/atomic_clock"
	"go.uber.org/zap"
)

// DefaultTimeout is how long a task may go without kicking its beacon.
const DefaultTimeout = 30 * time.Second

// Beacon is a task's liveness timestamp. Kick is safe from any goroutine.
type Beacon struct {
	name string
	last *atomic_clock.Clock
}

// Kick records progress.
func (b *Beacon) Kick() { b.last.SetNow() }

// Age returns the time since the last Kick.
func (b *Beacon) Age() time.Duration { return atomic_clock.Since(b.last) }

// Name returns the registered task name.
func (b *Beacon) Name() string { return b.name }

// Watchdog supervises a set of beacons.
type Watchdog struct {
	mu      sync.Mutex
	beacons []*Beacon
	timeout time.Duration
	log     *zap.SugaredLogger

	// Notify sends a state string to the service manager.
	Notify func(state string) (bool, error)

	// OnExpire runs once when a beacon goes stale and no service manager
	// watchdog is active.
	OnExpire func(stale []string)

	expired bool
}

// New creates a Watchdog. timeout <= 0 selects DefaultTimeout.
func New(timeout time.Duration, log *zap.SugaredLogger) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	w := &Watchdog{
		timeout: timeout,
		log:     log,
		Notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
	w.OnExpire = func(stale []string) {
		w.log.Errorf("watchdog: tasks stalled %v, restarting", stale)
		_ = w.log.Sync()
		os.Exit(2)
	}
	return w
}

// Register adds a beacon, fresh as of now.
func (w *Watchdog) Register(name string) *Beacon {
	b := &Beacon{name: name, last: atomic_clock.Now()}
	w.mu.Lock()
	w.beacons = append(w.beacons, b)
	w.mu.Unlock()
	return b
}

// Stale returns the sorted names of beacons older than the timeout.
func (w *Watchdog) Stale() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var stale []string
	for _, b := range w.beacons {
		if b.Age() > w.timeout {
			stale = append(stale, b.name)
		}
	}
	sort.Strings(stale)
	return stale
}

// Interval returns how often Run checks the beacons: half the systemd
// watchdog period when one is configured, else a third of the timeout.
func (w *Watchdog) Interval() time.Duration {
	if d, err := daemon.SdWatchdogEnabled(false); err == nil && d > 0 {
		return d / 2
	}
	return w.timeout / 3
}

// Check pets the service manager if every beacon is fresh. It reports
// whether all beacons were fresh.
func (w *Watchdog) Check(managed bool) bool {
	stale := w.Stale()
	if len(stale) == 0 {
		if _, err := w.Notify(daemon.SdNotifyWatchdog); err != nil {
			w.log.Warnf("watchdog: notify: %v", err)
		}
		return true
	}

	w.log.Errorf("watchdog: no progress from %v within %v", stale, w.timeout)
	if !managed && !w.expired && w.OnExpire != nil {
		w.expired = true
		w.OnExpire(stale)
	}
	return false
}

// Run checks beacons until stop is closed.
func (w *Watchdog) Run(stop <-chan struct{}) {
	d, err := daemon.SdWatchdogEnabled(false)
	w.run(stop, w.Interval(), err == nil && d > 0)
}

func (w *Watchdog) run(stop <-chan struct{}, interval time.Duration, managed bool) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			w.Check(managed)
		}
	}
}
