package console_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/cryoctl/internal/console"
	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/hardware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newController(t *testing.T) *cryo.Controller {
	t.Helper()

	ctrl, err := cryo.New(
		hardware.NewMockSensor(25),
		hardware.NewMockActuator(),
		cryo.WithLimits(cryo.Limits{Min: 0, Max: 50}),
		cryo.WithSetting(20),
	)
	require.NoError(t, err)

	return ctrl
}

func TestCommands(t *testing.T) {
	ctrl := newController(t)
	out := &syncBuffer{}
	quit := false

	input := strings.Join([]string{
		"t 22",
		"on",
		"",
		"status",
		"target 99",
		"target abc",
		"target",
		"reboot",
		"help",
		"q",
		"off",
	}, "\n")

	c := console.New(ctrl, strings.NewReader(input), out, func() { quit = true })
	require.NoError(t, c.Run(context.Background()))

	assert.True(t, quit)
	assert.Equal(t, 22, ctrl.TempSetting())
	assert.True(t, ctrl.PowerEnabled(), "commands after quit are not executed")

	text := out.String()
	assert.Contains(t, text, "temperature setting 22 C")
	assert.Contains(t, text, "power on")
	assert.Contains(t, text, "setting 22 C [0, 50]  power on  cooling idle")
	assert.Contains(t, text, "temperature 99 outside [0, 50]")
	assert.Contains(t, text, `invalid temperature "abc"`)
	assert.Contains(t, text, "usage: target <n>")
	assert.Contains(t, text, `unknown command "reboot"`)
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "shutting down")
}

func TestEOFStopsConsoleOnly(t *testing.T) {
	ctrl := newController(t)
	quit := false

	c := console.New(ctrl, strings.NewReader("off\n"), io.Discard, func() { quit = true })
	require.NoError(t, c.Run(context.Background()))

	assert.False(t, quit)
}

func TestRunStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	c := console.New(newController(t), r, io.Discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop")
	}
}

func TestObservePrintsTransitions(t *testing.T) {
	out := &syncBuffer{}
	c := console.New(newController(t), strings.NewReader(""), out, nil)

	ts := time.Now()
	status := cryo.Status{
		Reading: cryo.Reading{Value: 25, Timestamp: ts},
		Setting: 20,
	}

	c.Observe(status) // inactive baseline, nothing printed
	assert.Empty(t, out.String())

	status.CoolingActive = true
	c.Observe(status)
	c.Observe(status)

	status.CoolingActive = false
	status.Reading.Value = 19.5
	status.ActiveDuration = 1500 * time.Millisecond
	c.Observe(status)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "cooling on at 25.00 C (setting 20 C)", lines[0])
	assert.Equal(t, "cooling off at 19.50 C after 1.5s", lines[1])
}

func TestFormatStatus(t *testing.T) {
	status := cryo.Status{
		Setting:        20,
		Limits:         cryo.Limits{Min: 0, Max: 50},
		PowerEnabled:   true,
		CoolingActive:  true,
		ActiveDuration: 2 * time.Second,
		Duty:           100,
		SensorFaults:   2,
	}

	assert.Equal(t,
		"temperature --  setting 20 C [0, 50]  power on  cooling active for 2s  duty 100%  sensor faults 2",
		console.FormatStatus(status))
}
