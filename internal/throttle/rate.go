package throttle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is N requests per Duration.
type Rate struct {
	Limit    int
	Duration time.Duration
}

var units = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseRate parses "<N>/<unit>". Only the first letter of the unit is significant, so
// "60/m" and "60/minute" are the same rate.
func ParseRate(raw string) (Rate, error) {
	num, period, found := strings.Cut(strings.TrimSpace(raw), "/")
	if !found || period == "" {
		return Rate{}, fmt.Errorf("invalid rate %q: expected <N>/<unit>", raw)
	}
	limit, err := strconv.Atoi(num)
	if err != nil || limit < 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: bad request count", raw)
	}
	unit, ok := units[period[0]]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: unit must be one of s, m, h, d", raw)
	}
	return Rate{Limit: limit, Duration: unit}, nil
}

func (r Rate) String() string {
	for c, d := range units {
		if d == r.Duration {
			return fmt.Sprintf("%d/%c", r.Limit, c)
		}
	}
	return fmt.Sprintf("%d/%s", r.Limit, r.Duration)
}
