package platform

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"lautenbacher.net/goirac/config"
	"lautenbacher.net/goirac/ir"
)

// flushEvery is the number of receiver reads between two idle checks.
const flushEvery = 256

type RaspberryPiPlatform struct {
	*AbstractPlatform
	sender    *ir.Sender
	sensor    *IIOSensor
	button    rpioButton
	receiver  rpio.Pin
	led       rpio.Pin
	stopChan  chan struct{}
	samplerWg sync.WaitGroup
}

func NewRaspberryPiPlatform(conf *config.Config) *RaspberryPiPlatform {
	return &RaspberryPiPlatform{
		AbstractPlatform: newAbstractPlatform(conf),
		sensor:           NewIIOSensor(conf.Hardware.SensorPath),
		stopChan:         make(chan struct{}),
	}
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Initialise GPIO and PWM...")
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}

	s.button = rpioButton{pin: rpio.Pin(s.config.Hardware.ButtonPin)}
	s.button.pin.Input()
	s.button.pin.PullUp()

	// TSOP style receivers idle high and pull low while they see carrier
	s.receiver = rpio.Pin(s.config.Hardware.ReceiverPin)
	s.receiver.Input()
	s.receiver.PullUp()

	s.led = rpio.Pin(s.config.Hardware.LedPin)
	s.led.Mode(rpio.Pwm)
	// PWM frequency is clock / cycle length, the cycle has two ticks
	s.led.Freq(2 * ir.Carrier38kHz)
	s.led.DutyCycle(0, 2)
	s.sender = ir.NewSender(pwmCarrier{pin: s.led})

	s.samplerWg.Add(1)
	go s.receiverSampler()

	s.setReady() // For RPi, we are ready immediately.
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	s.setInShutdown()
	close(s.stopChan)
	s.samplerWg.Wait()

	s.led.DutyCycle(0, 2)
	s.led.Output()
	s.led.Low()
	if err := rpio.Close(); err != nil {
		slog.Error("Error closing rpio", "error", err)
	}
}

func (s *RaspberryPiPlatform) Transmitter() Transmitter {
	return rpiTransmitter{s}
}

// rpiTransmitter refuses to touch the PWM registers once rpio is closed.
type rpiTransmitter struct {
	p *RaspberryPiPlatform
}

func (t rpiTransmitter) Transmit(samples []uint16) {
	if t.p.inShutdown() {
		slog.Warn("Platform shutting down, transmission dropped", "samples", len(samples))
		return
	}
	t.p.sender.Transmit(samples)
}

func (s *RaspberryPiPlatform) Sensor() Sensor {
	return s.sensor
}

func (s *RaspberryPiPlatform) Button() Button {
	return s.button
}

func (s *RaspberryPiPlatform) Commands() <-chan string {
	return nil
}

// receiverSampler polls the receiver pin as fast as it can and feeds
// every level change into the capture. rpio has no edge timestamps, so
// the timing resolution is the loop time.
func (s *RaspberryPiPlatform) receiverSampler() {
	defer s.samplerWg.Done()
	sampleLevels(s.receiver.Read, s.capture, s.stopChan, time.Now)
	slog.Info("Ending receiver sampler go-routine (RPi)")
}

func sampleLevels(read func() rpio.State, capture *ir.Capture, stop <-chan struct{}, now func() time.Time) {
	last := read()
	for i := 1; ; i++ {
		if i%flushEvery == 0 {
			select {
			case <-stop:
				return
			default:
			}
			capture.Flush(now())
		}
		level := read()
		if level != last {
			last = level
			capture.Edge(now())
		}
	}
}

type pwmCarrier struct {
	pin rpio.Pin
}

func (c pwmCarrier) On() {
	c.pin.DutyCycle(1, 2)
}

func (c pwmCarrier) Off() {
	c.pin.DutyCycle(0, 2)
}

type rpioButton struct {
	pin rpio.Pin
}

func (b rpioButton) Level() bool {
	return b.pin.Read() == rpio.High
}
