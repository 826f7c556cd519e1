package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type notifyLog struct {
	mu     sync.Mutex
	states []string
}

func (n *notifyLog) Notify(state string) (bool, error) {
	n.mu.Lock()
	n.states = append(n.states, state)
	n.mu.Unlock()
	return true, nil
}

func (n *notifyLog) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.states)
}

func newTestWatchdog(t *testing.T, timeout time.Duration) (*Watchdog, *notifyLog, *[][]string) {
	t.Helper()
	w := New(timeout, zaptest.NewLogger(t).Sugar())
	n := &notifyLog{}
	w.Notify = n.Notify
	var expired [][]string
	w.OnExpire = func(stale []string) { expired = append(expired, stale) }
	return w, n, &expired
}

func TestFreshBeaconsNotify(t *testing.T) {
	w, n, expired := newTestWatchdog(t, time.Minute)
	w.Register("forwarder").Kick()
	w.Register("receiver")

	assert.True(t, w.Check(false))
	assert.Equal(t, []string{daemon.SdNotifyWatchdog}, n.states)
	assert.Empty(t, *expired)
}

func TestStaleBeaconWithholdsNotify(t *testing.T) {
	w, n, expired := newTestWatchdog(t, 10*time.Millisecond)
	fresh := w.Register("sweeper")
	w.Register("forwarder")

	time.Sleep(20 * time.Millisecond)
	fresh.Kick()

	assert.Equal(t, []string{"forwarder"}, w.Stale())
	assert.False(t, w.Check(false))
	assert.Equal(t, 0, n.Count())
	require.Len(t, *expired, 1)
	assert.Equal(t, []string{"forwarder"}, (*expired)[0])

	// Expiry fires once.
	w.Check(false)
	assert.Len(t, *expired, 1)
}

func TestManagedLeavesRestartToServiceManager(t *testing.T) {
	w, n, expired := newTestWatchdog(t, 5*time.Millisecond)
	w.Register("forwarder")
	time.Sleep(10 * time.Millisecond)

	assert.False(t, w.Check(true))
	assert.Equal(t, 0, n.Count())
	assert.Empty(t, *expired)
}

func TestKickRecovers(t *testing.T) {
	w, _, _ := newTestWatchdog(t, 10*time.Millisecond)
	b := w.Register("forwarder")
	time.Sleep(20 * time.Millisecond)
	require.NotEmpty(t, w.Stale())

	b.Kick()
	assert.Empty(t, w.Stale())
	assert.Less(t, b.Age(), 10*time.Millisecond)
	assert.Equal(t, "forwarder", b.Name())
}

func TestRunStops(t *testing.T) {
	w, n, _ := newTestWatchdog(t, time.Minute)
	b := w.Register("loop")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.run(stop, time.Millisecond, false)
		close(done)
	}()

	require.Eventually(t, func() bool {
		b.Kick()
		return n.Count() >= 3
	}, time.Second, time.Millisecond)
	close(stop)
	<-done
}

func TestDefaults(t *testing.T) {
	w := New(0, nil)
	assert.Equal(t, DefaultTimeout, w.timeout)
	assert.NotNil(t, w.OnExpire)
	assert.NotNil(t, w.Notify)
}
