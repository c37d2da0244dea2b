package progress

import (
	"math"

	"github.com/oasis-elearning/oasis/core"
)

type DashboardStats struct {
	TotalCourses      int `json:"total_courses"`
	CompletedCourses  int `json:"completed_courses"`
	InProgressCourses int `json:"in_progress_courses"`
	NotStartedCourses int `json:"not_started_courses"`
	FailedCourses     int `json:"failed_courses"`
	TotalTimeSpent    int `json:"total_time_spent"` // minutes
	AverageScore      int `json:"average_score"`
	Certificates      int `json:"certificates"`
	CurrentStreak     int `json:"current_streak"`
	LongestStreak     int `json:"longest_streak"`
}

// ComputeDashboard aggregates the progress records of a user.
// AverageScore is the mean over courses of each course's mean quiz best score; a course
// without quiz results counts as 0.
func ComputeDashboard(records []Progress, streak core.Streak) DashboardStats {
	stats := DashboardStats{
		TotalCourses:  len(records),
		CurrentStreak: streak.Current,
		LongestStreak: streak.Longest,
	}

	var scoreSum float64
	for _, p := range records {
		switch p.Status {
		case StatusCompleted:
			stats.CompletedCourses++
		case StatusInProgress:
			stats.InProgressCourses++
		case StatusNotStarted:
			stats.NotStartedCourses++
		case StatusFailed:
			stats.FailedCourses++
		}
		stats.TotalTimeSpent += p.TotalTimeSpent
		if p.Certificate.Issued {
			stats.Certificates++
		}
		scoreSum += courseAverageScore(p)
	}

	if len(records) > 0 {
		stats.AverageScore = int(math.Round(scoreSum / float64(len(records))))
	}
	return stats
}

func courseAverageScore(p Progress) float64 {
	if len(p.QuizResults) == 0 {
		return 0
	}
	sum := 0
	for _, qr := range p.QuizResults {
		sum += qr.BestScore
	}
	return float64(sum) / float64(len(p.QuizResults))
}
