package core

import "time"

// Streak counts consecutive days with recorded activity.
type Streak struct {
	Current          int        `json:"current_streak"`
	Longest          int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date"`
}

// Record registers activity at `now`. Several activities on the same (UTC) day count once,
// activity on the following day extends the streak, anything later restarts it at 1.
func (s *Streak) Record(now time.Time) {
	today := truncateDay(now)
	switch {
	case s.LastActivityDate == nil:
		s.Current = 1
	default:
		last := truncateDay(*s.LastActivityDate)
		switch {
		case !today.After(last):
			// same day (or clock skew): nothing to extend
			if s.Current == 0 {
				s.Current = 1
			}
		case today.Sub(last) == 24*time.Hour:
			s.Current++
		default:
			s.Current = 1
		}
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	t := now.UTC()
	if s.LastActivityDate == nil || t.After(*s.LastActivityDate) {
		s.LastActivityDate = &t
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
