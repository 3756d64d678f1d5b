package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lautenbacher.net/goirac/config"
	ctl "lautenbacher.net/goirac/controller"
	"lautenbacher.net/goirac/ir"
	pl "lautenbacher.net/goirac/platform"
	"lautenbacher.net/goirac/store"
)

type MockPlatform struct {
	pl.Platform
	capture  *ir.Capture
	commands chan string

	mu       sync.Mutex
	released bool
	sent     [][]uint16
	temp     float64
	applied  []c.RuntimeConfig
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		capture:  ir.NewCapture(ir.DefaultMaxSamples, ir.DefaultCaptureTimeout),
		commands: make(chan string, 8),
		released: true,
		temp:     25,
	}
}

func (m *MockPlatform) Receiver() pl.Receiver       { return m.capture }
func (m *MockPlatform) Transmitter() pl.Transmitter { return m }
func (m *MockPlatform) Sensor() pl.Sensor           { return m }
func (m *MockPlatform) Button() pl.Button           { return m }
func (m *MockPlatform) Commands() <-chan string     { return m.commands }
func (m *MockPlatform) Stop()                       {}

func (m *MockPlatform) Apply(rc c.RuntimeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, rc)
}

func (m *MockPlatform) Transmit(samples []uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, samples)
}

func (m *MockPlatform) Read() pl.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pl.Reading{Temperature: m.temp, Humidity: 40}
}

func (m *MockPlatform) Level() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

func (m *MockPlatform) setButton(released bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = released
}

func (m *MockPlatform) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockLink struct {
	offline
	commands chan string
	logs     []string
}

func (l *mockLink) Commands() <-chan string { return l.commands }
func (l *mockLink) Log(msg string)          { l.logs = append(l.logs, msg) }

const testConfig = `
Device:
  ID: ac1
Thresholds:
  High: 27.0
  Low: 23.0
Control:
  Interval: 5s
  LoopDelay: 5ms
  Debounce: 50ms
Storage:
  File: signals.bin
  SlotSpan: 400
IR:
  CaptureTimeout: 15ms
  MaxSamples: 1024
Hardware:
  ButtonPin: 23
  ReceiverPin: 17
  LedPin: 18
  SensorPath: /sys/bus/iio/devices/iio:device0
MQTT:
  Enabled: false
Web:
  Enabled: false
`

func newTestApp(t *testing.T) (*App, *MockPlatform, *mockLink) {
	t.Helper()
	cfile := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(testConfig), 0o644))
	conf, err := c.ReadConfig(cfile)
	require.NoError(t, err)

	app := NewApp(make(chan os.Signal, 4))
	app.conf = conf
	app.cfile = cfile
	mock := NewMockPlatform()
	link := &mockLink{commands: make(chan string, 8)}
	app.platform = mock
	app.link = link

	layout := store.DefaultLayout()
	app.wire(store.New(store.NewMemMedium(layout.Size()), layout))
	return app, mock, link
}

func TestStep_LearnsAndReplays(t *testing.T) {
	app, mock, link := newTestApp(t)
	now := time.Unix(1000, 0)

	link.commands <- "learn"
	app.step(now)
	require.Equal(t, ctl.Learning, app.ctrl.Mode())

	for cmd := byte(1); cmd <= 3; cmd++ {
		require.True(t, mock.capture.Inject(ir.Frame{Protocol: ir.NEC, Samples: ir.EncodeNEC(0x20, cmd)}))
		app.step(now)
	}
	assert.Equal(t, ctl.Automatic, app.ctrl.Mode())
	assert.Contains(t, link.logs, "All signals saved. Switching to AUTO.")

	mock.commands <- "off"
	app.step(now)
	require.Equal(t, 1, mock.sentCount())
	assert.Equal(t, ir.EncodeNEC(0x20, 3), mock.sent[0])
}

func TestStep_CommandsFromBothSourcesInOrder(t *testing.T) {
	app, _, link := newTestApp(t)

	link.commands <- "learn"
	app.platform.(*MockPlatform).commands <- "auto"
	app.step(time.Unix(0, 0))

	// broker commands are drained first
	assert.Equal(t, ctl.Automatic, app.ctrl.Mode())
	assert.Contains(t, link.logs, "Command received: learn")
	assert.Contains(t, link.logs, "Command received: auto")
}

func TestStep_ButtonTogglesAfterDebounce(t *testing.T) {
	app, mock, _ := newTestApp(t)
	start := time.Unix(2000, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	app.step(at(-100))

	// a 20ms blip does nothing
	mock.setButton(false)
	app.step(at(0))
	app.step(at(20))
	mock.setButton(true)
	app.step(at(25))
	app.step(at(200))
	assert.Equal(t, ctl.Automatic, app.ctrl.Mode())

	// a real press toggles exactly once
	mock.setButton(false)
	for ms := 300; ms < 1000; ms += 10 {
		app.step(at(ms))
	}
	assert.Equal(t, ctl.Learning, app.ctrl.Mode())
	mock.setButton(true)
	for ms := 1000; ms < 1200; ms += 10 {
		app.step(at(ms))
	}
	assert.Equal(t, ctl.Learning, app.ctrl.Mode())
}

func TestReload_AppliedByLoop(t *testing.T) {
	app, mock, _ := newTestApp(t)
	mock.temp = 26
	now := time.Unix(3000, 0)
	app.step(now)
	require.Equal(t, 0, mock.sentCount())

	// learn COOL so the policy has something to send
	app.ctrl.SetMode(ctl.Learning)
	require.True(t, mock.capture.Inject(ir.Frame{Protocol: ir.NEC, Samples: ir.EncodeNEC(0x20, 1)}))
	app.step(now)
	app.ctrl.SetMode(ctl.Automatic)

	updated := strings.Replace(testConfig, "High: 27.0", "High: 25.5", 1)
	require.NoError(t, os.WriteFile(app.cfile, []byte(updated), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.shutdownWg.Add(1)
	go app.signalHandler(cancel)
	app.ossignal <- syscall.SIGHUP

	tick := now
	assert.Eventually(t, func() bool {
		tick = tick.Add(10 * time.Second)
		app.step(tick)
		return app.conf.Thresholds.High == 25.5
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, mock.sentCount())
	require.NotEmpty(t, mock.applied)
	assert.Equal(t, 25.5, mock.applied[len(mock.applied)-1].Thresholds.High)

	close(app.stopsignal)
	app.shutdownWg.Wait()
	assert.NoError(t, ctx.Err())
}

func TestStep_ButtonHeldAtStartup(t *testing.T) {
	app, mock, _ := newTestApp(t)
	start := time.Unix(2000, 0)

	mock.setButton(false)
	for ms := 0; ms < 1000; ms += 10 {
		app.step(start.Add(time.Duration(ms) * time.Millisecond))
	}
	assert.Equal(t, ctl.Automatic, app.ctrl.Mode())
}

func TestStep_ReplayWhileLearningKeepsCapture(t *testing.T) {
	app, mock, _ := newTestApp(t)
	now := time.Unix(4000, 0)

	app.ctrl.SetMode(ctl.Learning)
	require.True(t, mock.capture.Inject(ir.Frame{Protocol: ir.NEC, Samples: ir.EncodeNEC(0x20, 1)}))
	mock.commands <- "cool"
	app.step(now)

	assert.Equal(t, 1, app.ctrl.Sequencer().Step())
	require.Equal(t, 1, mock.sentCount())
	assert.Equal(t, ir.EncodeNEC(0x20, 1), mock.sent[0])
}

func TestApplyConfig_LogLevel(t *testing.T) {
	app, _, _ := newTestApp(t)
	conf := app.conf
	conf.Logging.TUI.Level = "DEBUG"
	conf.Thresholds.Low = 22

	app.applyConfig(conf)
	assert.Equal(t, "DEBUG", app.conf.Logging.TUI.Level)
	assert.Equal(t, 22.0, app.conf.Thresholds.Low)
}

func TestReload_InvalidFileKeepsConfig(t *testing.T) {
	app, _, _ := newTestApp(t)
	require.NoError(t, os.WriteFile(app.cfile, []byte("Device: [broken"), 0o644))

	app.reload()
	_, pending := app.reloads.Take()
	assert.False(t, pending)
}

func TestRun_StopsOnInterrupt(t *testing.T) {
	app, _, link := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	app.shutdownWg.Add(1)
	go app.signalHandler(cancel)

	done := make(chan struct{})
	go func() {
		app.run(ctx)
		close(done)
	}()

	app.ossignal <- os.Interrupt
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("control loop did not stop")
	}
	app.shutdownWg.Wait()
	assert.Contains(t, link.logs, "System Initialized. Press button to enter Learning Mode.")
}
