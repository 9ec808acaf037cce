// ABOUTME: Playout buffer correction statistics
// ABOUTME: Counters reset on every reporting interval
package jitter

import "github.com/sirupsen/logrus"

// Stats tracks correction activity since the last reset
type Stats struct {
	Added         int64 // samples inserted by splicing
	Removed       int64 // samples dropped by splicing
	Attempts      int64
	Successes     int64
	AttemptAdd    int64
	AttemptRemove int64
	Overs         int64 // arrivals above the tolerated band
	Unders        int64 // arrivals below the tolerated band
	Flushes       int64
	SuccessRate   float64 // percent of attempts that found a splice point
}

func (s *Stats) recordAttempt(found bool) {
	s.Attempts++
	if found {
		s.Successes++
	}
	s.SuccessRate = float64(s.Successes) * 100 / float64(s.Attempts)
}

// Fields renders the counters for structured logging
func (s Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"added":          s.Added,
		"removed":        s.Removed,
		"attempts":       s.Attempts,
		"successes":      s.Successes,
		"attempt_add":    s.AttemptAdd,
		"attempt_remove": s.AttemptRemove,
		"overs":          s.Overs,
		"unders":         s.Unders,
		"flushes":        s.Flushes,
		"success_rate":   s.SuccessRate,
	}
}
