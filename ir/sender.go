package ir

import (
	"sync"
	"time"
)

// Carrier switches the modulated IR LED output.
type Carrier interface {
	On()
	Off()
}

// Sender replays raw sequences on a carrier. Transmit blocks for the
// real time duration of the sequence.
type Sender struct {
	mu      sync.Mutex
	carrier Carrier
	// waitUntil blocks until the deadline. Busy waiting keeps the jitter
	// well below the tolerance of the receivers; time.Sleep does not.
	waitUntil func(deadline time.Time)
	now       func() time.Time
}

func NewSender(carrier Carrier) *Sender {
	return &Sender{
		carrier:   carrier,
		waitUntil: spinUntil,
		now:       time.Now,
	}
}

func spinUntil(deadline time.Time) {
	for time.Now().Before(deadline) {
	}
}

// Transmit sends samples: even indices are marks, odd ones spaces.
// Deadlines are computed from the start so errors do not accumulate.
func (s *Sender) Transmit(samples []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := s.now()
	for i, us := range samples {
		if i%2 == 0 {
			s.carrier.On()
		} else {
			s.carrier.Off()
		}
		deadline = deadline.Add(time.Duration(us) * time.Microsecond)
		s.waitUntil(deadline)
	}
	s.carrier.Off()
}
