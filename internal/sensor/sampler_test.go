package sensor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/tank-sensor/internal/gpio"
	"github.com/sweeney/tank-sensor/internal/logic"
)

func newTestSampler(t *testing.T, echoes ...gpio.Echo) (*Sampler, *gpio.FakeRanger, *[]time.Duration) {
	t.Helper()
	r := gpio.NewFakeRanger(echoes...)
	s := NewSampler(r, DefaultConfig(), zaptest.NewLogger(t).Sugar())
	var slept []time.Duration
	s.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, r, &slept
}

func TestPulseToMM(t *testing.T) {
	for _, mm := range []int32{20, 250, 1000, 2500, 4500} {
		assert.Equal(t, mm, PulseToMM(gpio.EchoFor(mm).Width), "mm=%d", mm)
	}
}

func TestSampleClassifies(t *testing.T) {
	s, _, _ := newTestSampler(t,
		gpio.EchoFor(1200),
		gpio.Echo{Err: gpio.ErrEchoTimeout},
		gpio.EchoFor(10),
		gpio.EchoFor(6000),
	)

	assert.Equal(t, logic.ValidReading(1200), s.Sample())
	assert.Equal(t, logic.InvalidReading(logic.ErrorTimeout), s.Sample())
	assert.Equal(t, logic.InvalidReading(logic.ErrorOutOfRange), s.Sample())
	assert.Equal(t, logic.InvalidReading(logic.ErrorOutOfRange), s.Sample())
}

func TestFilteredSampleRejectsOutliers(t *testing.T) {
	s, r, slept := newTestSampler(t,
		gpio.EchoFor(1500),
		gpio.EchoFor(300), // false echo off a pipe
		gpio.EchoFor(1502),
		gpio.Echo{Err: gpio.ErrEchoTimeout},
		gpio.EchoFor(1499),
		gpio.EchoFor(4400),
		gpio.EchoFor(1501),
		gpio.EchoFor(1500),
		gpio.EchoFor(8000),
		gpio.EchoFor(1498),
		gpio.EchoFor(1500),
	)

	got := s.FilteredSample()
	require.True(t, got.Valid)
	assert.InDelta(t, 1500, got.Value, 2)
	assert.Equal(t, 11, r.Pings)
	assert.Len(t, *slept, 10)
	assert.Equal(t, 100*time.Millisecond, (*slept)[0])
	assert.Zero(t, s.Errors())
}

func TestFilteredSampleInsufficient(t *testing.T) {
	s, _, _ := newTestSampler(t, gpio.Echo{Err: gpio.ErrEchoTimeout})

	got := s.FilteredSample()
	assert.False(t, got.Valid)
	assert.Equal(t, logic.ErrorInsufficientSamples, got.Err)
	assert.Equal(t, uint32(1), s.Errors())
}

func TestFilteredSampleSmoothsAcrossRounds(t *testing.T) {
	s, r, _ := newTestSampler(t, gpio.EchoFor(1000))
	require.Equal(t, int32(1000), s.FilteredSample().Value)

	r.Echoes = []gpio.Echo{gpio.EchoFor(1100)}
	r.Reset()
	// 0.3*1100 + 0.7*1000
	assert.Equal(t, int32(1030), s.FilteredSample().Value)
}

func TestFileSupply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in_voltage0_raw")
	require.NoError(t, os.WriteFile(path, []byte("2048\n"), 0o644))

	mv, err := FileSupply{Path: path, Scale: 1.8}.Millivolts()
	require.NoError(t, err)
	assert.Equal(t, uint16(3686), mv)

	_, err = FileSupply{Path: filepath.Join(t.TempDir(), "missing")}.Millivolts()
	assert.Error(t, err)

	mv, err = FixedSupply(5000).Millivolts()
	require.NoError(t, err)
	assert.Equal(t, uint16(5000), mv)
}

func TestBoardTemp(t *testing.T) {
	dir := t.TempDir()
	write := func(v string) string {
		p := filepath.Join(dir, "temp")
		require.NoError(t, os.WriteFile(p, []byte(v), 0o644))
		return p
	}

	c, err := BoardTemp(write("48312\n"))
	require.NoError(t, err)
	assert.Equal(t, int8(48), c)

	c, err = BoardTemp(write("200000"))
	require.NoError(t, err)
	assert.Equal(t, int8(127), c)

	_, err = BoardTemp(write("warm"))
	assert.Error(t, err)
}

func TestFreeMemKiB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meminfo")
	require.NoError(t, os.WriteFile(path, []byte("MemTotal:        948280 kB\nMemFree:          61000 kB\nMemAvailable:    512340 kB\n"), 0o644))

	kib, err := FreeMemKiB(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(512340), kib)

	require.NoError(t, os.WriteFile(path, []byte("MemTotal: 1 kB\n"), 0o644))
	_, err = FreeMemKiB(path)
	assert.Error(t, err)
}
