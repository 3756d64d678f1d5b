package platform

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/goirac/config"
	"lautenbacher.net/goirac/ir"
	"lautenbacher.net/goirac/logging"
)

const (
	maxEventHistory = 8
	maxTempHistory  = 120
	tuiTitle        = " GOIRAC Simulation "
	tempStep        = 0.5
	// simRemoteAddr is the NEC address of the simulated remote control.
	simRemoteAddr = 0x20
)

var keyHelp = map[rune]string{
	'1': "remote COOL",
	'2': "remote FAN",
	'3': "remote OFF",
	'u': "noise frame",
	'x': "oversized frame",
	'b': "mode button",
	'+': "warmer",
	'-': "colder",
	'n': "sensor failure",
	'c': "cmd cool",
	'f': "cmd fan",
	'o': "cmd off",
	'a': "cmd auto",
	'l': "cmd learn",
	'r': "reload",
	'q': "quit",
}

var keyCommands = map[rune]string{
	'c': "cool",
	'f': "fan",
	'o': "off",
	'a': "auto",
	'l': "learn",
}

type TUIPlatform struct {
	*AbstractPlatform
	tviewapp     *tview.Application
	intro        *tview.TextView
	statusView   *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	sender       *ir.Sender
	carrier      *simCarrier
	button       *simButton
	commands     chan string
	logFlushOnce sync.Once

	// guards everything below
	mu            sync.Mutex
	temperature   float64
	humidity      float64
	sensorFailing bool
	events        *deque.Deque[string]
	temps         *deque.Deque[float64]
}

func NewTUIPlatform(conf *config.Config, ossignalchan chan os.Signal) *TUIPlatform {
	carrier := &simCarrier{}
	inst := &TUIPlatform{
		AbstractPlatform: newAbstractPlatform(conf),
		ossignalChan:     ossignalchan,
		sender:           ir.NewSender(carrier),
		carrier:          carrier,
		button:           &simButton{},
		commands:         make(chan string, 16),
		temperature:      25.0,
		humidity:         45.0,
		events:           new(deque.Deque[string]),
		temps:            new(deque.Deque[float64]),
	}
	inst.temps.Grow(maxTempHistory)
	return inst
}

func (s *TUIPlatform) Start() error {
	s.initSimulationTUI()
	return nil
}

func (s *TUIPlatform) Stop() {
	s.setInShutdown()
	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

func (s *TUIPlatform) Transmitter() Transmitter {
	return tuiTransmitter{s}
}

func (s *TUIPlatform) Sensor() Sensor {
	return tuiSensor{s}
}

func (s *TUIPlatform) Button() Button {
	return s.button
}

func (s *TUIPlatform) Commands() <-chan string {
	return s.commands
}

// tuiTransmitter replays in real time on a simulated carrier and shows
// what was sent.
type tuiTransmitter struct {
	p *TUIPlatform
}

func (t tuiTransmitter) Transmit(samples []uint16) {
	t.p.sender.Transmit(samples)
	frame := ir.Frame{Protocol: ir.Classify(samples), Samples: samples}
	t.p.addEvent(fmt.Sprintf("TX %s, %.1fms", frame, float64(ir.Duration(samples))/float64(time.Millisecond)))
}

type tuiSensor struct {
	p *TUIPlatform
}

func (t tuiSensor) Read() Reading {
	t.p.mu.Lock()
	if t.p.sensorFailing {
		t.p.mu.Unlock()
		return FailedReading()
	}
	r := Reading{Temperature: t.p.temperature, Humidity: t.p.humidity}
	if t.p.temps.Len() == maxTempHistory {
		t.p.temps.PopFront()
	}
	t.p.temps.PushBack(r.Temperature)
	t.p.mu.Unlock()

	t.p.refresh()
	return r
}

// simCarrier counts the marks of the last transmission.
type simCarrier struct {
	mu    sync.Mutex
	on    bool
	marks int
}

func (c *simCarrier) On() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.on {
		c.marks++
	}
	c.on = true
}

func (c *simCarrier) Off() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.on = false
}

type simButton struct {
	mu      sync.Mutex
	pressed bool
}

func (b *simButton) Level() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.pressed
}

// press holds the button down for hold, like a finger would.
func (b *simButton) press(hold time.Duration) {
	b.mu.Lock()
	b.pressed = true
	b.mu.Unlock()
	time.AfterFunc(hold, func() {
		b.mu.Lock()
		b.pressed = false
		b.mu.Unlock()
	})
}

func (s *TUIPlatform) addEvent(event string) {
	s.mu.Lock()
	if s.events.Len() == maxEventHistory {
		s.events.PopFront()
	}
	s.events.PushBack(time.Now().Format("15:04:05 ") + event)
	s.mu.Unlock()
	s.refresh()
}

// injectFrame simulates a frame arriving at the receiver.
func (s *TUIPlatform) injectFrame(frame ir.Frame) {
	if !s.capture.Inject(frame) {
		slog.Info("Receiver busy, frame dropped", "frame", frame.String())
		return
	}
	s.addEvent("RX " + frame.String())
}

func (s *TUIPlatform) sendCommand(cmd string) {
	select {
	case s.commands <- cmd:
		s.addEvent("CMD " + cmd)
	default:
		slog.Warn("Command queue full, dropping command", "command", cmd)
	}
}

// handleRune applies a key press and reports whether it was consumed.
func (s *TUIPlatform) handleRune(r rune) bool {
	if cmd, exists := keyCommands[r]; exists {
		s.sendCommand(cmd)
		return true
	}
	switch r {
	case '1', '2', '3':
		cmd := byte(r - '0')
		s.injectFrame(ir.Frame{Protocol: ir.NEC, Samples: ir.EncodeNEC(simRemoteAddr, cmd)})
	case 'u':
		s.injectFrame(ir.Frame{Protocol: ir.Unknown, Samples: []uint16{9000, 2250, 560}})
	case 'x':
		// longer than a slot can hold
		samples := []uint16{3400, 1750}
		for len(samples) < 2*s.config.Storage.SlotSpan {
			samples = append(samples, 430, 1300)
		}
		s.injectFrame(ir.Frame{Protocol: ir.Classify(samples), Samples: samples})
	case 'b':
		s.button.press(s.runtime().Control.Debounce + 100*time.Millisecond)
		s.addEvent("BUTTON pressed")
	case '+', '-':
		s.mu.Lock()
		if r == '+' {
			s.temperature += tempStep
		} else {
			s.temperature -= tempStep
		}
		s.mu.Unlock()
		s.refresh()
	case 'n':
		s.mu.Lock()
		s.sensorFailing = !s.sensorFailing
		s.mu.Unlock()
		s.refresh()
	case 'q', 'Q':
		s.ossignalChan <- os.Interrupt
	case 'r', 'R':
		s.ossignalChan <- syscall.SIGHUP
	default:
		return false
	}
	return true
}

// getIntroText lists the keys, four per line.
func getIntroText() string {
	var buf strings.Builder
	for i, key := range slices.Sorted(maps.Keys(keyHelp)) {
		if i > 0 && i%4 == 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "[#ff0000]%c[-] %-16s", key, keyHelp[key])
	}
	return buf.String()
}

func (s *TUIPlatform) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	// --- Intro Pane ---
	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(getIntroText())
	s.intro.SetBorder(true).SetTitle(tuiTitle).SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	// --- Status Pane ---
	s.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.statusView.SetBorder(true).SetTitle(" Device ").SetTitleColor(tcell.ColorLightBlue)
	s.statusView.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	// --- Log Pane ---
	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	introHeight := 2 + (len(keyHelp)+3)/4
	statusHeight := 2 + 3 + maxEventHistory

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, introHeight, 0, false).
		AddItem(s.statusView, statusHeight, 0, false).
		AddItem(s.logView, 0, 1, true)

	// --- Flush logs after first draw ---
	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			logging.SetOutput(tview.ANSIWriter(s.logView))
			s.setReady()
		})
	})

	// --- Input Handling ---
	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.ossignalChan <- os.Interrupt
			return nil
		case tcell.KeyRune:
			if s.handleRune(event.Rune()) {
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	s.statusView.SetText(s.statusText())

	// --- Start TUI ---
	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.ossignalChan <- os.Interrupt
		}
	}()
}

func (s *TUIPlatform) refresh() {
	if s.tviewapp == nil || s.inShutdown() {
		return
	}
	// Called from key handlers on the TUI goroutine too, where queueing
	// directly could block. The text is built at draw time, so the order
	// of the updates does not matter.
	go s.tviewapp.QueueUpdateDraw(func() {
		s.statusView.SetText(s.statusText())
	})
}

type tempStats struct {
	min  float64
	max  float64
	mean float64
}

func calculateStats(data []float64) tempStats {
	if len(data) == 0 {
		return tempStats{}
	}
	stats := tempStats{min: math.Inf(1), max: math.Inf(-1)}
	var sum float64
	for _, v := range data {
		stats.min = math.Min(stats.min, v)
		stats.max = math.Max(stats.max, v)
		sum += v
	}
	stats.mean = sum / float64(len(data))
	return stats
}

func (s *TUIPlatform) statusText() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf strings.Builder
	sensor := fmt.Sprintf("[#ffff00]%.1f°C[-] / %.1f%%", s.temperature, s.humidity)
	if s.sensorFailing {
		sensor = "[#ff0000]FAILING[-]"
	}
	thresholds := s.runtime().Thresholds
	fmt.Fprintf(&buf, " Sensor: %s   Thresholds: %.1f / %.1f   Button: %s\n",
		sensor, thresholds.Low, thresholds.High, buttonText(s.button.Level()))

	temps := make([]float64, 0, s.temps.Len())
	for i := 0; i < s.temps.Len(); i++ {
		temps = append(temps, s.temps.At(i))
	}
	stats := calculateStats(temps)
	fmt.Fprintf(&buf, " Readings: %d   min %.1f   max %.1f   mean %.1f   Receiver: %s\n",
		len(temps), stats.min, stats.max, stats.mean, receiverText(s.capture.Pending()))

	buf.WriteString(" [blue]Last events[-]\n")
	for i := 0; i < s.events.Len(); i++ {
		buf.WriteString(" " + s.events.At(i) + "\n")
	}
	return buf.String()
}

func buttonText(level bool) string {
	if level {
		return "released"
	}
	return "[#ff0000]pressed[-]"
}

func receiverText(pending bool) string {
	if pending {
		return "[#ffff00]frame pending[-]"
	}
	return "idle"
}
