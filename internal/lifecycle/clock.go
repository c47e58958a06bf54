package lifecycle

import "time"

// Clock supplies time and timers to sessions.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Ticker
}

// Ticker is the part of time.Ticker and time.Timer a session uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

func (systemClock) NewTimer(d time.Duration) Ticker { return stdTimer{time.NewTimer(d)} }

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

type stdTimer struct{ t *time.Timer }

func (s stdTimer) C() <-chan time.Time { return s.t.C }
func (s stdTimer) Stop()               { s.t.Stop() }
