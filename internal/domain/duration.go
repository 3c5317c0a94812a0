package domain

import "time"

// TimeSpent is the broken-down length of an interval.
type TimeSpent struct {
	Hours        int `json:"hours"`
	Minutes      int `json:"minutes"`
	Seconds      int `json:"seconds"`
	TotalSeconds int `json:"total_seconds"`
}

// TimeSpentFromSeconds converts an aggregated second count to a breakdown.
func TimeSpentFromSeconds(total int) TimeSpent {
	if total < 0 {
		return TimeSpent{}
	}
	return TimeSpent{
		Hours:        total / 3600,
		Minutes:      (total % 3600) / 60,
		Seconds:      total % 60,
		TotalSeconds: total,
	}
}

// TimeSpentBetween computes the breakdown between two instants. Either
// endpoint missing, or end before start, yields the zero value.
func TimeSpentBetween(start, end time.Time) TimeSpent {
	if start.IsZero() || end.IsZero() {
		return TimeSpent{}
	}
	total := int(end.Sub(start) / time.Second)
	if total < 0 {
		return TimeSpent{}
	}
	return TimeSpent{
		Hours:        total / 3600,
		Minutes:      (total % 3600) / 60,
		Seconds:      total % 60,
		TotalSeconds: total,
	}
}
