package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

var unitSeconds = map[string]int64{
	"s": 1,
	"m": 60,
	"h": 60 * 60,
	"d": 24 * 60 * 60,
}

var rateRe = regexp.MustCompile(`^(\d+)/(\d*)([smhd])$`)

// Rate é um limite de Requests dentro de Span.
type Rate struct {
	Requests int64
	Span     time.Duration
}

// ParseRate interpreta "N/unit", onde unit pode ter um multiplicador ("5/2s", "100/h").
func ParseRate(s string) (Rate, error) {
	m := rateRe.FindStringSubmatch(s)
	if m == nil {
		return Rate{}, NewConfigurationError("rate", "malformed rate %q", s)
	}

	requests, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || requests <= 0 {
		return Rate{}, NewConfigurationError("rate", "allowed requests must be positive in %q", s)
	}

	multiplier := int64(1)
	if m[2] != "" {
		multiplier, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil || multiplier <= 0 {
			return Rate{}, NewConfigurationError("rate", "span multiplier must be positive in %q", s)
		}
	}
	unit := unitSeconds[m[3]]
	if multiplier > math.MaxInt64/int64(time.Second)/unit {
		return Rate{}, NewConfigurationError("rate", "span too large in %q", s)
	}

	return Rate{
		Requests: requests,
		Span:     time.Duration(multiplier*unit) * time.Second,
	}, nil
}

func (r Rate) String() string {
	secs := int64(r.Span / time.Second)
	for _, unit := range []string{"d", "h", "m"} {
		size := unitSeconds[unit]
		if secs >= size && secs%size == 0 {
			return formatRate(r.Requests, secs/size, unit)
		}
	}
	return formatRate(r.Requests, secs, "s")
}

func formatRate(requests, amount int64, unit string) string {
	if amount == 1 {
		return fmt.Sprintf("%d/%s", requests, unit)
	}
	return fmt.Sprintf("%d/%d%s", requests, amount, unit)
}

func (r Rate) validate() error {
	if r.Requests <= 0 {
		return NewConfigurationError("rate", "allowed requests must be positive, got %d", r.Requests)
	}
	if r.Span <= 0 {
		return NewConfigurationError("rate", "span must be positive, got %s", r.Span)
	}
	return nil
}
