package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
)

var courseOrderings = map[string]lessFunc[course.Course]{
	"title":          func(a, b course.Course) int { return compareStrings(a.Title, b.Title) },
	"category":       func(a, b course.Course) int { return compareStrings(a.Category, b.Category) },
	"level":          func(a, b course.Course) int { return compareStrings(a.Level, b.Level) },
	"duration":       func(a, b course.Course) int { return compareInts(a.Duration, b.Duration) },
	"enrolled":       func(a, b course.Course) int { return compareInts(a.Enrollment.Enrolled, b.Enrollment.Enrolled) },
	"average_rating": func(a, b course.Course) int { return compareFloats(a.Stats.AverageRating, b.Stats.AverageRating) },
	"created_at":     func(a, b course.Course) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	c.ID = uuid.NewString()
	stored := clone(c)
	repo.db.course.table[c.ID] = &stored
	return c, nil
}

func matchCourse(c course.Course, filter course.QueryFilter) bool {
	if !filter.IncludeUnpublished && !c.IsPublished {
		return false
	}
	if filter.Search != "" && !containsFold(c.Title, filter.Search) && !containsFold(c.Description, filter.Search) {
		found := false
		for _, tag := range c.Tags {
			if containsFold(tag, filter.Search) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Category != "" && c.Category != filter.Category {
		return false
	}
	if filter.Department != "" && c.Department != filter.Department && c.Department != course.AllDepartments {
		return false
	}
	if filter.Level != "" && c.Level != filter.Level {
		return false
	}
	return true
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]course.Course, int, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.course.table {
		if matchCourse(*c, filter) {
			courses = append(courses, clone(*c))
		}
	}
	sortRows(courses, ordering, courseOrderings, core.DBOrdering{Field: "created_at"})
	return paginate(courses, page), len(courses), nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	if c, ok := repo.db.course.table[id]; ok {
		return clone(*c), nil
	}
	return course.Course{}, course.ErrNotFound
}

// UpdateCourse keeps the stored counters and stats, which only move through
// IncrementEnrolled and ApplyRating.
func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	orig, ok := repo.db.course.table[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	c.Enrollment.Enrolled = orig.Enrollment.Enrolled
	c.Stats = orig.Stats
	c.CreatedBy = orig.CreatedBy
	c.CreatedAt = orig.CreatedAt

	stored := clone(c)
	repo.db.course.table[c.ID] = &stored
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	if _, ok := repo.db.course.table[id]; !ok {
		return course.ErrNotFound
	}
	delete(repo.db.course.table, id)

	repo.db.progress.Lock()
	defer repo.db.progress.Unlock()
	for pid, p := range repo.db.progress.table {
		if p.CourseID == id {
			delete(repo.db.progress.table, pid)
		}
	}
	return nil
}

func (repo *courseRepository) IncrementEnrolled(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	c, ok := repo.db.course.table[id]
	if !ok {
		return course.ErrNotFound
	}
	if c.Enrollment.Capacity > 0 && c.Enrollment.Enrolled >= c.Enrollment.Capacity {
		return course.ErrCourseFull
	}
	c.Enrollment.Enrolled++
	return nil
}

func (repo *courseRepository) ApplyRating(_ context.Context, id string, prevStars, stars int) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	c, ok := repo.db.course.table[id]
	if !ok {
		return course.ErrNotFound
	}
	st := &c.Stats
	n := float64(st.TotalRatings)
	switch {
	case stars == 0:
		if st.TotalRatings <= 1 {
			st.AverageRating, st.TotalRatings = 0, 0
			break
		}
		st.AverageRating = (st.AverageRating*n - float64(prevStars)) / (n - 1)
		st.TotalRatings--
	case prevStars == 0:
		st.AverageRating = (st.AverageRating*n + float64(stars)) / (n + 1)
		st.TotalRatings++
	case st.TotalRatings > 0:
		st.AverageRating = (st.AverageRating*n - float64(prevStars) + float64(stars)) / n
	default:
		st.AverageRating = float64(stars)
		st.TotalRatings = 1
	}
	return nil
}
