package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTimestamp = errors.New("invalid ledger timestamp")

// Consensus timestamp as returned by the mirror node: "<seconds>.<nanoseconds>"
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func ParseTimestamp(s string) (ts Timestamp, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		err = fmt.Errorf("%w: empty", ErrInvalidTimestamp)
		return
	}

	secPart, nanoPart, hasNanos := strings.Cut(s, ".")
	ts.Seconds, err = strconv.ParseInt(secPart, 10, 64)
	if err != nil || ts.Seconds < 0 {
		err = fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		return
	}

	if !hasNanos {
		return
	}

	if len(nanoPart) == 0 || len(nanoPart) > 9 {
		err = fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		return
	}

	// Right-pad so that "1.5" means 500000000ns
	padded := nanoPart + strings.Repeat("0", 9-len(nanoPart))
	nanos, err := strconv.ParseInt(padded, 10, 32)
	if err != nil || nanos < 0 {
		err = fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		return
	}
	ts.Nanos = int32(nanos)
	return
}

func (self Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", self.Seconds, self.Nanos)
}

func (self Timestamp) Time() time.Time {
	return time.Unix(self.Seconds, int64(self.Nanos)).UTC()
}

func (self Timestamp) IsZero() bool {
	return self.Seconds == 0 && self.Nanos == 0
}

func (self Timestamp) Compare(other Timestamp) int {
	switch {
	case self.Seconds < other.Seconds:
		return -1
	case self.Seconds > other.Seconds:
		return 1
	case self.Nanos < other.Nanos:
		return -1
	case self.Nanos > other.Nanos:
		return 1
	}
	return 0
}

func (self Timestamp) Before(other Timestamp) bool {
	return self.Compare(other) < 0
}

func (self Timestamp) After(other Timestamp) bool {
	return self.Compare(other) > 0
}

// Subtracts the duration, never goes below zero
func (self Timestamp) Add(d time.Duration) Timestamp {
	t := self.Time().Add(d)
	if t.Before(time.Unix(0, 0)) {
		return Timestamp{}
	}
	return FromTime(t)
}

// Parses optional values stored in the database
func ParseOptional(s *string) (*Timestamp, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	ts, err := ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
