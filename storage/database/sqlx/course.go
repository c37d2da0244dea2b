package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
)

const (
	coursesTable        = "courses"
	coursesDefaultOrder = "created_at DESC"
)

var courseColumns = []string{
	"id", "title", "description", "thumbnail", "category", "department", "level", "duration", "instructor",
	"lessons", "prerequisites", "tags", "learning_objectives", "certification", "enrollment_open",
	"enrollment_capacity", "enrolled", "enrollment_start", "enrollment_end", "complete_by", "settings",
	"average_rating", "total_ratings", "completion_rate", "average_completion_time", "is_published",
	"published_at", "created_by", "last_updated_by", "created_at", "updated_at",
}

type courseRow struct {
	ID                    string         `db:"id"`
	Title                 string         `db:"title"`
	Description           string         `db:"description"`
	Thumbnail             string         `db:"thumbnail"`
	Category              string         `db:"category"`
	Department            string         `db:"department"`
	Level                 string         `db:"level"`
	Duration              int            `db:"duration"`
	Instructor            types.JSONText `db:"instructor"`
	Lessons               types.JSONText `db:"lessons"`
	Prerequisites         pq.StringArray `db:"prerequisites"`
	Tags                  pq.StringArray `db:"tags"`
	LearningObjectives    pq.StringArray `db:"learning_objectives"`
	Certification         types.JSONText `db:"certification"`
	EnrollmentOpen        bool           `db:"enrollment_open"`
	EnrollmentCapacity    int            `db:"enrollment_capacity"`
	Enrolled              int            `db:"enrolled"`
	EnrollmentStart       null.Time      `db:"enrollment_start"`
	EnrollmentEnd         null.Time      `db:"enrollment_end"`
	CompleteBy            null.Time      `db:"complete_by"`
	Settings              types.JSONText `db:"settings"`
	AverageRating         float64        `db:"average_rating"`
	TotalRatings          int            `db:"total_ratings"`
	CompletionRate        float64        `db:"completion_rate"`
	AverageCompletionTime float64        `db:"average_completion_time"`
	IsPublished           bool           `db:"is_published"`
	PublishedAt           null.Time      `db:"published_at"`
	CreatedBy             null.String    `db:"created_by"`
	LastUpdatedBy         null.String    `db:"last_updated_by"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

type courseRepository struct {
	exec core.DBExecutor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{exec: exec}
}

func (repo courseRepository) toRow(c course.Course) (row courseRow, err error) {
	row = courseRow{
		ID:                    c.ID,
		Title:                 c.Title,
		Description:           c.Description,
		Thumbnail:             c.Thumbnail,
		Category:              c.Category,
		Department:            c.Department,
		Level:                 c.Level,
		Duration:              c.Duration,
		Prerequisites:         nonNilSlice(c.Prerequisites),
		Tags:                  nonNilSlice(c.Tags),
		LearningObjectives:    nonNilSlice(c.LearningObjectives),
		EnrollmentOpen:        c.Enrollment.IsOpen,
		EnrollmentCapacity:    c.Enrollment.Capacity,
		Enrolled:              c.Enrollment.Enrolled,
		EnrollmentStart:       null.TimeFromPtr(c.Enrollment.StartDate),
		EnrollmentEnd:         null.TimeFromPtr(c.Enrollment.EndDate),
		CompleteBy:            null.TimeFromPtr(c.Enrollment.CompleteBy),
		AverageRating:         c.Stats.AverageRating,
		TotalRatings:          c.Stats.TotalRatings,
		CompletionRate:        c.Stats.CompletionRate,
		AverageCompletionTime: c.Stats.AverageCompletionTime,
		IsPublished:           c.IsPublished,
		PublishedAt:           null.TimeFromPtr(c.PublishedAt),
		CreatedBy:             null.NewString(c.CreatedBy, c.CreatedBy != ""),
		LastUpdatedBy:         null.NewString(c.LastUpdatedBy, c.LastUpdatedBy != ""),
		CreatedAt:             c.CreatedAt.UTC(),
		UpdatedAt:             c.UpdatedAt.UTC(),
	}
	if row.Instructor, err = toJSON(c.Instructor); err != nil {
		return row, err
	}
	lessons := c.Lessons
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	if row.Lessons, err = toJSON(lessons); err != nil {
		return row, err
	}
	if row.Certification, err = toJSON(c.Certification); err != nil {
		return row, err
	}
	row.Settings, err = toJSON(c.Settings)
	return row, err
}

func (repo courseRepository) fromRow(row courseRow) (c course.Course, err error) {
	c = course.Course{
		ID:                 row.ID,
		Title:              row.Title,
		Description:        row.Description,
		Thumbnail:          row.Thumbnail,
		Category:           row.Category,
		Department:         row.Department,
		Level:              row.Level,
		Duration:           row.Duration,
		Prerequisites:      nonNilSlice(row.Prerequisites),
		Tags:               nonNilSlice(row.Tags),
		LearningObjectives: nonNilSlice(row.LearningObjectives),
		Enrollment: course.Enrollment{
			IsOpen:     row.EnrollmentOpen,
			Capacity:   row.EnrollmentCapacity,
			Enrolled:   row.Enrolled,
			StartDate:  utcPtr(row.EnrollmentStart),
			EndDate:    utcPtr(row.EnrollmentEnd),
			CompleteBy: utcPtr(row.CompleteBy),
		},
		Stats: course.Stats{
			AverageRating:         row.AverageRating,
			TotalRatings:          row.TotalRatings,
			CompletionRate:        row.CompletionRate,
			AverageCompletionTime: row.AverageCompletionTime,
		},
		IsPublished:   row.IsPublished,
		PublishedAt:   utcPtr(row.PublishedAt),
		CreatedBy:     row.CreatedBy.String,
		LastUpdatedBy: row.LastUpdatedBy.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	for _, col := range []struct {
		name string
		src  types.JSONText
		dst  interface{}
	}{
		{"instructor", row.Instructor, &c.Instructor},
		{"lessons", row.Lessons, &c.Lessons},
		{"certification", row.Certification, &c.Certification},
		{"settings", row.Settings, &c.Settings},
	} {
		if err = fromJSON(col.src, col.dst); err != nil {
			return c, errors.Wrapf(err, "decoding course %s", col.name)
		}
	}
	if c.Lessons == nil {
		c.Lessons = []course.Lesson{}
	}
	return c, nil
}

// values returns the editable columns of a course row; counters and stats are written
// by IncrementEnrolled and ApplyRating only.
func (repo courseRepository) values(row courseRow) map[string]interface{} {
	return map[string]interface{}{
		"title":               row.Title,
		"description":         row.Description,
		"thumbnail":           row.Thumbnail,
		"category":            row.Category,
		"department":          row.Department,
		"level":               row.Level,
		"duration":            row.Duration,
		"instructor":          row.Instructor,
		"lessons":             row.Lessons,
		"prerequisites":       row.Prerequisites,
		"tags":                row.Tags,
		"learning_objectives": row.LearningObjectives,
		"certification":       row.Certification,
		"enrollment_open":     row.EnrollmentOpen,
		"enrollment_capacity": row.EnrollmentCapacity,
		"enrollment_start":    row.EnrollmentStart,
		"enrollment_end":      row.EnrollmentEnd,
		"complete_by":         row.CompleteBy,
		"settings":            row.Settings,
		"is_published":        row.IsPublished,
		"published_at":        row.PublishedAt,
		"last_updated_by":     row.LastUpdatedBy,
		"updated_at":          row.UpdatedAt,
	}
}

func (repo courseRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.NewString()
	row, err := repo.toRow(c)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "encoding course")
	}

	values := repo.values(row)
	values["id"] = row.ID
	values["enrolled"] = row.Enrolled
	values["average_rating"] = row.AverageRating
	values["total_ratings"] = row.TotalRatings
	values["completion_rate"] = row.CompletionRate
	values["average_completion_time"] = row.AverageCompletionTime
	values["created_by"] = row.CreatedBy
	values["created_at"] = row.CreatedAt

	query, args, err := psql.Insert(coursesTable).SetMap(values).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course insert")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) filter(b sq.SelectBuilder, filter course.QueryFilter) sq.SelectBuilder {
	if !filter.IncludeUnpublished {
		b = b.Where(sq.Eq{"is_published": true})
	}
	// courses with title, description or one of the tags matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"title": val},
			sq.ILike{"description": val},
			sq.Expr("EXISTS (SELECT 1 FROM UNNEST(tags) AS tag WHERE tag ILIKE ?)", val),
		})
	}
	if filter.Category != "" {
		b = b.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Department != "" {
		b = b.Where(sq.Eq{"department": []string{filter.Department, course.AllDepartments}})
	}
	if filter.Level != "" {
		b = b.Where(sq.Eq{"level": filter.Level})
	}
	return b
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]course.Course, int, error) {
	total, err := count(ctx, repo.exec, repo.filter(psql.Select("COUNT(*)").From(coursesTable), filter))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	b := repo.filter(psql.Select(courseColumns...).From(coursesTable), filter)
	b = paginate(orderBy(b, ordering, coursesDefaultOrder), page)
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "building courses query")
	}

	var rows []courseRow
	if err = repo.exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		c, err := repo.fromRow(row)
		if err != nil {
			return nil, 0, err
		}
		courses = append(courses, c)
	}
	return courses, total, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	query, args, err := psql.Select(courseColumns...).From(coursesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course query")
	}
	var row courseRow
	if err = repo.exec.GetContext(ctx, &row, query, args...); err != nil {
		return course.Course{}, repo.trapErr(err, "finding course")
	}
	return repo.fromRow(row)
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	row, err := repo.toRow(c)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "encoding course")
	}
	query, args, err := psql.Update(coursesTable).SetMap(repo.values(row)).Where(sq.Eq{"id": c.ID}).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := affected(res); err != nil {
		return course.Course{}, err
	} else if n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	// counters may have moved since `c` was read
	return repo.GetCourse(ctx, c.ID)
}

// DeleteCourse relies on the progress.course_id foreign key cascade.
func (repo courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return course.ErrNotFound
	}
	query, args, err := psql.Delete(coursesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building course delete")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) exists(ctx context.Context, id string) (bool, error) {
	query, args, err := psql.Select("1").From(coursesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, err
	}
	var found int
	if err = repo.exec.GetContext(ctx, &found, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (repo courseRepository) IncrementEnrolled(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return course.ErrNotFound
	}
	query, args, err := psql.Update(coursesTable).
		Set("enrolled", sq.Expr("enrolled + 1")).
		Where(sq.Eq{"id": id}).
		Where("(enrollment_capacity = 0 OR enrolled < enrollment_capacity)").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building enrolled increment")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "incrementing enrolled")
	}
	n, err := affected(res)
	if err != nil || n > 0 {
		return err
	}

	found, err := repo.exists(ctx, id)
	if err != nil {
		return errors.Wrap(err, "checking course")
	}
	if !found {
		return course.ErrNotFound
	}
	return course.ErrCourseFull
}

func (repo courseRepository) ApplyRating(ctx context.Context, id string, prevStars, stars int) error {
	if _, err := uuid.Parse(id); err != nil {
		return course.ErrNotFound
	}
	b := psql.Update(coursesTable).Where(sq.Eq{"id": id})
	switch {
	case stars == 0:
		b = b.
			Set("average_rating", sq.Expr(
				"CASE WHEN total_ratings > 1 THEN (average_rating * total_ratings - ?::float8) / (total_ratings - 1) ELSE 0 END",
				prevStars,
			)).
			Set("total_ratings", sq.Expr("GREATEST(total_ratings - 1, 0)"))
	case prevStars == 0:
		b = b.
			Set("average_rating", sq.Expr("(average_rating * total_ratings + ?::float8) / (total_ratings + 1)", stars)).
			Set("total_ratings", sq.Expr("total_ratings + 1"))
	default:
		b = b.
			Set("average_rating", sq.Expr(
				"CASE WHEN total_ratings > 0 THEN (average_rating * total_ratings - ?::float8 + ?::float8) / total_ratings ELSE ?::float8 END",
				prevStars, stars, stars,
			)).
			Set("total_ratings", sq.Expr("GREATEST(total_ratings, 1)"))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building rating update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "applying rating")
	}
	if n, err := affected(res); err != nil {
		return err
	} else if n == 0 {
		return course.ErrNotFound
	}
	return nil
}
