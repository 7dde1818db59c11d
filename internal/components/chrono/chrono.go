package chrono

import (
	"sync"
	"time"
	_ "time/tzdata"
)

var vancouver *time.Location

func init() {
	var err error
	vancouver, err = time.LoadLocation("America/Vancouver")
	if err != nil {
		panic(err)
	}
}

// Vancouver returns a [*time.Location] for America/Vancouver, the timezone
// the college's terms are defined in.
func Vancouver() *time.Location {
	return vancouver
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in America/Vancouver.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(vancouver)
}

// FakeTime is a TimeAPI whose time only moves when told to.
type FakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeTime(now time.Time) *FakeTime {
	return &FakeTime{now: now.In(vancouver)}
}

func (f *FakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *FakeTime) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now.In(vancouver)
}
