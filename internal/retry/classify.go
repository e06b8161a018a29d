package retry

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the retry class assigned to a failed attempt.
type Kind int

const (
	// Fatal errors are returned to the caller without retrying.
	Fatal Kind = iota
	// Transient errors are retried with exponential backoff.
	Transient
	// Hinted errors carry a server supplied delay that is honoured before
	// the next attempt.
	Hinted
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Transient:
		return "transient"
	case Hinted:
		return "hinted"
	default:
		return "unknown"
	}
}

// Decision is the outcome of classifying an error.
type Decision struct {
	Kind  Kind
	Delay time.Duration // only meaningful for Hinted
}

// Classifier maps a failed attempt to a retry decision.
type Classifier func(err error) Decision

var (
	retryInPattern    = regexp.MustCompile(`Please retry in (\d+(?:\.\d+)?)s`)
	retryDelayPattern = regexp.MustCompile(`retry_delay\s*\{\s*seconds:\s*(\d+)`)
)

// MessageClassifier is the default classifier. Upstream model APIs do not
// expose structured error codes through every client, so it looks only at the
// error text: explicit retry hints first, then rate limit and availability
// markers. Everything else is fatal.
func MessageClassifier(err error) Decision {
	if err == nil {
		return Decision{Kind: Fatal}
	}
	msg := err.Error()

	if d, ok := ParseRetryHint(msg); ok {
		return Decision{Kind: Hinted, Delay: d}
	}
	if isTransientMessage(msg) {
		return Decision{Kind: Transient}
	}
	return Decision{Kind: Fatal}
}

// ParseRetryHint extracts a server requested delay from msg. Two phrasings
// are recognised: "Please retry in 55.1s" and "retry_delay { seconds: 55 }".
func ParseRetryHint(msg string) (time.Duration, bool) {
	for _, re := range []*regexp.Regexp{retryInPattern, retryDelayPattern} {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

func isTransientMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "429") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "Timeout")
}
