package dispatch

import "time"

// Metrics receives counters and gauges from the dispatcher. monitor.Collector
// implements it.
type Metrics interface {
	MessageReceived(msgID uint16)
	ObserveProcessing(d time.Duration)
	SetOnlinePlayers(n int)
	SetActiveRooms(n int)
	GameStarted()
	CorrectGuess()
	StaleTimer()
}

type nopMetrics struct{}

func (nopMetrics) MessageReceived(uint16)          {}
func (nopMetrics) ObserveProcessing(time.Duration) {}
func (nopMetrics) SetOnlinePlayers(int)            {}
func (nopMetrics) SetActiveRooms(int)              {}
func (nopMetrics) GameStarted()                    {}
func (nopMetrics) CorrectGuess()                   {}
func (nopMetrics) StaleTimer()                     {}
