package platform

import (
	"sync"

	c "lautenbacher.net/goirac/config"
	"lautenbacher.net/goirac/ir"
)

// AbstractPlatform holds what both platforms share: the frame capture
// the platform feeds, the ready signal and the shutdown flag.
type AbstractPlatform struct {
	config         *c.Config
	capture        *ir.Capture
	readyChan      chan bool
	readyOnce      sync.Once
	shutdownMutex  sync.RWMutex
	isShuttingDown bool

	runtimeMutex sync.RWMutex
	runtimeConf  c.RuntimeConfig
}

func newAbstractPlatform(conf *c.Config) *AbstractPlatform {
	return &AbstractPlatform{
		config:      conf,
		capture:     ir.NewCapture(conf.IR.MaxSamples, conf.IR.CaptureTimeout),
		readyChan:   make(chan bool),
		runtimeConf: conf.Runtime(),
	}
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *AbstractPlatform) Receiver() Receiver {
	return s.capture
}

// Apply takes over a reloaded runtime configuration.
func (s *AbstractPlatform) Apply(rc c.RuntimeConfig) {
	s.runtimeMutex.Lock()
	s.runtimeConf = rc
	s.runtimeMutex.Unlock()
}

func (s *AbstractPlatform) runtime() c.RuntimeConfig {
	s.runtimeMutex.RLock()
	defer s.runtimeMutex.RUnlock()
	return s.runtimeConf
}

func (s *AbstractPlatform) setReady() {
	s.readyOnce.Do(func() { close(s.readyChan) })
}

func (s *AbstractPlatform) setInShutdown() {
	s.shutdownMutex.Lock()
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()
}

func (s *AbstractPlatform) inShutdown() bool {
	s.shutdownMutex.RLock()
	defer s.shutdownMutex.RUnlock()
	return s.isShuttingDown
}
