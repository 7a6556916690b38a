package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so billing decisions (overdue, paid dates,
// generation timestamps) can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func New() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
