package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/progress"
)

const (
	progressTable         = "progress"
	progressUserCourseKey = "progress_user_course_key"
)

var progressColumns = []string{
	"id", "user_id", "course_id", "status", "enrolled_at", "started_at", "completed_at", "last_accessed_at",
	"total_time_spent", "overall_progress", "lessons", "quiz_results", "final_assessment", "certificate",
	"notes", "bookmarks", "rating", "streak", "created_at", "updated_at",
}

type progressRow struct {
	ID              string             `db:"id"`
	UserID          string             `db:"user_id"`
	CourseID        string             `db:"course_id"`
	Status          string             `db:"status"`
	EnrolledAt      time.Time          `db:"enrolled_at"`
	StartedAt       null.Time          `db:"started_at"`
	CompletedAt     null.Time          `db:"completed_at"`
	LastAccessedAt  time.Time          `db:"last_accessed_at"`
	TotalTimeSpent  int                `db:"total_time_spent"`
	OverallProgress int                `db:"overall_progress"`
	Lessons         types.JSONText     `db:"lessons"`
	QuizResults     types.JSONText     `db:"quiz_results"`
	FinalAssessment types.JSONText     `db:"final_assessment"`
	Certificate     types.JSONText     `db:"certificate"`
	Notes           types.JSONText     `db:"notes"`
	Bookmarks       types.JSONText     `db:"bookmarks"`
	Rating          types.NullJSONText `db:"rating"`
	Streak          types.JSONText     `db:"streak"`
	CreatedAt       time.Time          `db:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at"`
}

type progressRepository struct {
	exec core.DBExecutor
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{exec: exec}
}

func (repo progressRepository) toRow(p progress.Progress) (row progressRow, err error) {
	row = progressRow{
		ID:              p.ID,
		UserID:          p.UserID,
		CourseID:        p.CourseID,
		Status:          p.Status,
		EnrolledAt:      p.EnrolledAt.UTC(),
		StartedAt:       null.TimeFromPtr(p.StartedAt),
		CompletedAt:     null.TimeFromPtr(p.CompletedAt),
		LastAccessedAt:  p.LastAccessedAt.UTC(),
		TotalTimeSpent:  p.TotalTimeSpent,
		OverallProgress: p.OverallProgress,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
	for _, col := range []struct {
		dst *types.JSONText
		src interface{}
	}{
		{&row.Lessons, nonNilSlice(p.Lessons)},
		{&row.QuizResults, nonNilSlice(p.QuizResults)},
		{&row.FinalAssessment, p.FinalAssessment},
		{&row.Certificate, p.Certificate},
		{&row.Notes, nonNilSlice(p.Notes)},
		{&row.Bookmarks, nonNilSlice(p.Bookmarks)},
		{&row.Streak, p.Streak},
	} {
		if *col.dst, err = toJSON(col.src); err != nil {
			return row, err
		}
	}
	if p.Rating != nil {
		var rating types.JSONText
		if rating, err = toJSON(p.Rating); err != nil {
			return row, err
		}
		row.Rating = types.NullJSONText{JSONText: rating, Valid: true}
	}
	return row, nil
}

func (repo progressRepository) fromRow(row progressRow) (p progress.Progress, err error) {
	p = progress.Progress{
		ID:              row.ID,
		UserID:          row.UserID,
		CourseID:        row.CourseID,
		Status:          row.Status,
		EnrolledAt:      row.EnrolledAt.UTC(),
		StartedAt:       utcPtr(row.StartedAt),
		CompletedAt:     utcPtr(row.CompletedAt),
		LastAccessedAt:  row.LastAccessedAt.UTC(),
		TotalTimeSpent:  row.TotalTimeSpent,
		OverallProgress: row.OverallProgress,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	for _, col := range []struct {
		name string
		src  types.JSONText
		dst  interface{}
	}{
		{"lessons", row.Lessons, &p.Lessons},
		{"quiz_results", row.QuizResults, &p.QuizResults},
		{"final_assessment", row.FinalAssessment, &p.FinalAssessment},
		{"certificate", row.Certificate, &p.Certificate},
		{"notes", row.Notes, &p.Notes},
		{"bookmarks", row.Bookmarks, &p.Bookmarks},
		{"streak", row.Streak, &p.Streak},
	} {
		if err = fromJSON(col.src, col.dst); err != nil {
			return p, errors.Wrapf(err, "decoding progress %s", col.name)
		}
	}
	if row.Rating.Valid {
		p.Rating = new(progress.Rating)
		if err = fromJSON(row.Rating.JSONText, p.Rating); err != nil {
			return p, errors.Wrap(err, "decoding progress rating")
		}
	}
	return p, nil
}

func (repo progressRepository) values(row progressRow) map[string]interface{} {
	return map[string]interface{}{
		"status":           row.Status,
		"started_at":       row.StartedAt,
		"completed_at":     row.CompletedAt,
		"last_accessed_at": row.LastAccessedAt,
		"total_time_spent": row.TotalTimeSpent,
		"overall_progress": row.OverallProgress,
		"lessons":          row.Lessons,
		"quiz_results":     row.QuizResults,
		"final_assessment": row.FinalAssessment,
		"certificate":      row.Certificate,
		"notes":            row.Notes,
		"bookmarks":        row.Bookmarks,
		"rating":           row.Rating,
		"streak":           row.Streak,
		"updated_at":       row.UpdatedAt,
	}
}

func (repo progressRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return progress.ErrNotFound
	}
	if isUniqueViolation(err, progressUserCourseKey) {
		return progress.ErrAlreadyEnrolled
	}
	if isForeignKeyViolation(err) {
		return core.NewValidationError(errors.New("unknown user or course"))
	}
	return errors.Wrap(err, msg)
}

func (repo progressRepository) CreateProgress(ctx context.Context, p progress.Progress) (progress.Progress, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row, err := repo.toRow(p)
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "encoding progress")
	}

	values := repo.values(row)
	values["id"] = row.ID
	values["user_id"] = row.UserID
	values["course_id"] = row.CourseID
	values["enrolled_at"] = row.EnrolledAt
	values["created_at"] = row.CreatedAt

	query, args, err := psql.Insert(progressTable).SetMap(values).ToSql()
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "building progress insert")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return progress.Progress{}, repo.trapErr(err, "inserting progress")
	}
	return p, nil
}

func (repo progressRepository) get(ctx context.Context, where sq.Eq) (progress.Progress, error) {
	query, args, err := psql.Select(progressColumns...).From(progressTable).Where(where).ToSql()
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "building progress query")
	}
	var row progressRow
	if err = repo.exec.GetContext(ctx, &row, query, args...); err != nil {
		return progress.Progress{}, repo.trapErr(err, "finding progress")
	}
	return repo.fromRow(row)
}

func (repo progressRepository) GetProgress(ctx context.Context, userID, courseID string) (progress.Progress, error) {
	if !validUUIDs(userID, courseID) {
		return progress.Progress{}, progress.ErrNotFound
	}
	return repo.get(ctx, sq.Eq{"user_id": userID, "course_id": courseID})
}

func (repo progressRepository) GetProgressByID(ctx context.Context, id string) (progress.Progress, error) {
	if !validUUIDs(id) {
		return progress.Progress{}, progress.ErrNotFound
	}
	return repo.get(ctx, sq.Eq{"id": id})
}

func (repo progressRepository) QueryProgress(ctx context.Context, filter progress.QueryFilter) ([]progress.Progress, error) {
	b := psql.Select(progressColumns...).From(progressTable).OrderBy("last_accessed_at DESC")
	if filter.UserID != "" {
		if !validUUIDs(filter.UserID) {
			return []progress.Progress{}, nil
		}
		b = b.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.CourseID != "" {
		if !validUUIDs(filter.CourseID) {
			return []progress.Progress{}, nil
		}
		b = b.Where(sq.Eq{"course_id": filter.CourseID})
	}
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": filter.Status})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building progress query")
	}
	var rows []progressRow
	if err = repo.exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	records := make([]progress.Progress, 0, len(rows))
	for _, row := range rows {
		p, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}

func (repo progressRepository) UpdateProgress(ctx context.Context, p progress.Progress) (progress.Progress, error) {
	row, err := repo.toRow(p)
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "encoding progress")
	}
	query, args, err := psql.Update(progressTable).SetMap(repo.values(row)).Where(sq.Eq{"id": p.ID}).ToSql()
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "building progress update")
	}
	res, err := repo.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return progress.Progress{}, repo.trapErr(err, "updating progress")
	}
	if n, err := affected(res); err != nil {
		return progress.Progress{}, err
	} else if n == 0 {
		return progress.Progress{}, progress.ErrNotFound
	}
	return p, nil
}

func (repo progressRepository) DeleteProgress(ctx context.Context, id string) error {
	if !validUUIDs(id) {
		return progress.ErrNotFound
	}
	query, args, err := psql.Delete(progressTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building progress delete")
	}
	if _, err = repo.exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting progress")
	}
	return nil
}

func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// nonNilSlice keeps empty collections encoded as [] rather than null.
func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
