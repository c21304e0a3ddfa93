// state/interfaces.go
package state

import "time"

// Scheduler arms one-shot or repeating callbacks. timer.TimerManager implements it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// WordPicker supplies the secret word for each round.
type WordPicker interface {
	Pick() string
}
