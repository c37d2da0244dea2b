package progress_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/user"
	emailsvc "github.com/oasis-elearning/oasis/services/email"
	"github.com/oasis-elearning/oasis/testutil"
)

func mockNow(t *testing.T, now time.Time) {
	orig := *progress.NowFunc
	*progress.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { *progress.NowFunc = orig })
}

func completeCourse(t *testing.T, env *testutil.Env, usr user.User, c course.Course) progress.Progress {
	t.Helper()

	ctx := context.Background()
	quizLesson := c.Lessons[1]
	_, _, err := env.ProgressSvc.SubmitQuiz(ctx, usr.ID, c.ID, quizLesson.ID, progress.QuizSubmission{
		Answers: []progress.SubmittedAnswer{{QuestionID: quizLesson.Quiz.Questions[0].ID, SelectedAnswer: "4"}},
	})
	require.NoError(t, err)
	p, err := env.ProgressSvc.Update(ctx, usr.ID, c.ID, progress.UpdateProgress{
		Lessons: []progress.LessonUpdate{{LessonID: c.Lessons[0].ID, Status: progress.StatusCompleted}},
	})
	require.NoError(t, err)
	require.Equal(t, progress.StatusCompleted, p.Status)
	return p
}

func TestService_Enroll(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Engineering")
	c := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Go Basics", "Engineering"))

	p, err := env.ProgressSvc.Enroll(ctx, usr, c)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusNotStarted, p.Status)
	assert.Equal(t, 0, p.OverallProgress)
	require.Len(t, p.Lessons, 2)
	for i, lp := range p.Lessons {
		assert.Equal(t, c.Lessons[i].ID, lp.LessonID)
		assert.Equal(t, progress.StatusNotStarted, lp.Status)
	}

	_, err = env.ProgressSvc.Enroll(ctx, usr, c)
	assert.Equal(t, progress.ErrAlreadyEnrolled, err)
	assert.True(t, core.IsConflict(err))

	records, err := env.ProgressSvc.Query(ctx, progress.QueryFilter{UserID: usr.ID})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	stored, err := env.CourseSvc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Enrollment.Enrolled)
}

func TestService_Enroll_Guards(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Engineering")
	now := time.Now().UTC()
	tomorrow, yesterday := now.AddDate(0, 0, 1), now.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		mutate  func(e *course.Enrollment)
		wantErr error
	}{
		{name: "closed", mutate: func(e *course.Enrollment) { e.IsOpen = false }, wantErr: course.ErrEnrollmentClosed},
		{name: "not started", mutate: func(e *course.Enrollment) { e.StartDate = &tomorrow }, wantErr: course.ErrEnrollmentNotStarted},
		{name: "ended", mutate: func(e *course.Enrollment) { e.EndDate = &yesterday }, wantErr: course.ErrEnrollmentClosed},
		{name: "past complete-by", mutate: func(e *course.Enrollment) { e.CompleteBy = &yesterday }, wantErr: course.ErrEnrollmentClosed},
		{name: "full", mutate: func(e *course.Enrollment) { e.Capacity, e.Enrolled = 5, 5 }, wantErr: course.ErrCourseFull},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := testutil.NewCourse("Guarded "+tt.name, "Engineering")
			tt.mutate(&c.Enrollment)
			c = testutil.CreateCourse(t, env.CourseRepo, c)

			_, err := env.ProgressSvc.Enroll(ctx, usr, c)
			assert.Equal(t, tt.wantErr, err)
			_, err = env.ProgressSvc.Get(ctx, usr.ID, c.ID)
			assert.Equal(t, progress.ErrNotFound, err)
		})
	}
}

func TestService_Enroll_Concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.NewCourse("Popular", course.AllDepartments)
	c.Enrollment.Capacity = 3
	c = testutil.CreateCourse(t, env.CourseRepo, c)

	users := make([]user.User, 10)
	for i := range users {
		users[i] = testutil.CreateUser(t, env.UserRepo, fmt.Sprintf("User%d", i), fmt.Sprintf("user%d@oasis.test", i), user.RoleEmployee, "Sales")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users)*2)
	for i, usr := range users {
		// every user races twice against the same stale course snapshot
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(idx int, usr user.User) {
				defer wg.Done()
				_, errs[idx] = env.ProgressSvc.Enroll(ctx, usr, c)
			}(i*2+j, usr)
		}
	}
	wg.Wait()

	var enrolled, full, duplicates int
	for _, err := range errs {
		switch err {
		case nil:
			enrolled++
		case course.ErrCourseFull:
			full++
		case progress.ErrAlreadyEnrolled:
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, enrolled)
	assert.Equal(t, len(errs), enrolled+full+duplicates)

	records, err := env.ProgressSvc.Query(ctx, progress.QueryFilter{CourseID: c.ID})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	stored, err := env.CourseSvc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Enrollment.Enrolled)
}

func TestService_FailedPastDeadline(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Engineering")

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	deadline := start.AddDate(0, 0, 7)
	c := testutil.NewCourse("Compliance 101", "Engineering")
	c.Enrollment.CompleteBy = &deadline
	c = testutil.CreateCourse(t, env.CourseRepo, c)

	mockNow(t, start)
	_, err := env.ProgressSvc.Enroll(ctx, usr, c)
	require.NoError(t, err)

	mockNow(t, start.AddDate(0, 0, 1))
	p, err := env.ProgressSvc.Update(ctx, usr.ID, c.ID, progress.UpdateProgress{
		Lessons: []progress.LessonUpdate{{LessonID: c.Lessons[0].ID, Status: progress.StatusCompleted}},
	})
	require.NoError(t, err)
	assert.Equal(t, progress.StatusInProgress, p.Status)

	mockNow(t, deadline.Add(time.Hour))
	p, err = env.ProgressSvc.Update(ctx, usr.ID, c.ID, progress.UpdateProgress{
		Lessons: []progress.LessonUpdate{{LessonID: c.Lessons[1].ID, TimeSpent: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, progress.StatusFailed, p.Status)
	assert.Equal(t, 50, p.OverallProgress)

	// finishing late still completes the course
	p = completeCourse(t, env, usr, c)
	assert.Equal(t, 100, p.OverallProgress)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, deadline.Add(time.Hour), *p.CompletedAt)
}

func TestService_Certificate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Engineering")
	c := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Go Basics", "Engineering"))

	noCert := testutil.NewCourse("Fire Drill", "Engineering")
	noCert.Certification.IsAvailable = false
	noCert = testutil.CreateCourse(t, env.CourseRepo, noCert)

	for _, cc := range []course.Course{c, noCert} {
		_, err := env.ProgressSvc.Enroll(ctx, usr, cc)
		require.NoError(t, err)
	}

	_, err := env.ProgressSvc.IssueCertificate(ctx, usr, c.ID)
	assert.Equal(t, progress.ErrCourseNotCompleted, err)

	completeCourse(t, env, usr, noCert)
	_, err = env.ProgressSvc.IssueCertificate(ctx, usr, noCert.ID)
	assert.Equal(t, progress.ErrCertificationUnavailable, err)

	completeCourse(t, env, usr, c)
	emailsvc.ClearSentMessages()
	issuedAt := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	mockNow(t, issuedAt)

	p, err := env.ProgressSvc.IssueCertificate(ctx, usr, c.ID)
	require.NoError(t, err)
	cert := p.Certificate
	require.True(t, cert.Issued)
	assert.Equal(t, issuedAt, *cert.IssuedAt)
	assert.Equal(t, issuedAt.AddDate(0, 12, 0), *cert.ValidUntil)
	assert.Equal(t, env.Conf.Certificate.BaseURL+"/certificates/"+cert.CertificateID, cert.DownloadURL)
	require.Len(t, emailsvc.SentMessages(), 1)

	// issuing again hands back the same certificate without a new email
	mockNow(t, issuedAt.AddDate(0, 1, 0))
	again, err := env.ProgressSvc.IssueCertificate(ctx, usr, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cert, again.Certificate)
	assert.Len(t, emailsvc.SentMessages(), 1)

	verified, err := env.ProgressSvc.VerifyCertificate(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, verified.ID)
	assert.Equal(t, usr.ID, verified.UserID)

	for _, certID := range []string{"", "garbage", cert.CertificateID + "x", "x" + cert.CertificateID[1:]} {
		_, err = env.ProgressSvc.VerifyCertificate(ctx, certID)
		assert.Equal(t, progress.ErrCertificateNotFound, err, certID)
	}
}

func TestService_Rate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Go Basics", course.AllDepartments))
	ann := testutil.CreateUser(t, env.UserRepo, "Ann", "ann@oasis.test", user.RoleEmployee, "Sales")
	bob := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")

	_, err := env.ProgressSvc.Rate(ctx, ann.ID, c.ID, progress.NewRating{Stars: 5})
	assert.Equal(t, progress.ErrNotFound, err, "rating requires an enrollment")

	for _, usr := range []user.User{ann, bob} {
		_, err = env.ProgressSvc.Enroll(ctx, usr, c)
		require.NoError(t, err)
	}

	steps := []struct {
		usr         user.User
		stars       int
		wantAverage float64
		wantTotal   int
	}{
		{usr: ann, stars: 5, wantAverage: 5, wantTotal: 1},
		{usr: bob, stars: 2, wantAverage: 3.5, wantTotal: 2},
		{usr: ann, stars: 3, wantAverage: 2.5, wantTotal: 2}, // replaces ann's 5
	}
	for _, s := range steps {
		p, err := env.ProgressSvc.Rate(ctx, s.usr.ID, c.ID, progress.NewRating{Stars: s.stars, Review: "  ok "})
		require.NoError(t, err)
		require.NotNil(t, p.Rating)
		assert.Equal(t, s.stars, p.Rating.Stars)
		assert.Equal(t, "ok", p.Rating.Review)

		stored, err := env.CourseSvc.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.InDelta(t, s.wantAverage, stored.Stats.AverageRating, 1e-9)
		assert.Equal(t, s.wantTotal, stored.Stats.TotalRatings)
	}
}

// brokenUpdates fails every write of an existing record.
type brokenUpdates struct {
	progress.Repository
}

func (brokenUpdates) UpdateProgress(context.Context, progress.Progress) (progress.Progress, error) {
	return progress.Progress{}, errors.New("connection reset")
}

func TestService_Rate_Rollback(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Go Basics", course.AllDepartments))
	ann := testutil.CreateUser(t, env.UserRepo, "Ann", "ann@oasis.test", user.RoleEmployee, "Sales")
	bob := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Sales")
	for _, usr := range []user.User{ann, bob} {
		_, err := env.ProgressSvc.Enroll(ctx, usr, c)
		require.NoError(t, err)
	}
	_, err := env.ProgressSvc.Rate(ctx, ann.ID, c.ID, progress.NewRating{Stars: 5})
	require.NoError(t, err)

	broken := progress.NewService(brokenUpdates{env.ProgressRepo}, env.CourseSvc, nil, nil)

	tests := []struct {
		name string
		usr  user.User
	}{
		{name: "first rating", usr: bob},
		{name: "re-rating", usr: ann},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := broken.Rate(ctx, tt.usr.ID, c.ID, progress.NewRating{Stars: 1})
			require.EqualError(t, err, "connection reset")

			stored, err := env.CourseSvc.GetByID(ctx, c.ID)
			require.NoError(t, err)
			assert.InDelta(t, 5, stored.Stats.AverageRating, 1e-9)
			assert.Equal(t, 1, stored.Stats.TotalRatings)
		})
	}

	p, err := env.ProgressSvc.Get(ctx, bob.ID, c.ID)
	require.NoError(t, err)
	assert.Nil(t, p.Rating)
}

func TestService_Rate_Concurrent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	c := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Go Basics", course.AllDepartments))
	ann := testutil.CreateUser(t, env.UserRepo, "Ann", "ann@oasis.test", user.RoleEmployee, "Sales")
	_, err := env.ProgressSvc.Enroll(ctx, ann, c)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(stars int) {
			defer wg.Done()
			_, err := env.ProgressSvc.Rate(ctx, ann.ID, c.ID, progress.NewRating{Stars: stars})
			assert.NoError(t, err)
		}(i%5 + 1)
	}
	wg.Wait()

	p, err := env.ProgressSvc.Get(ctx, ann.ID, c.ID)
	require.NoError(t, err)
	require.NotNil(t, p.Rating)
	stored, err := env.CourseSvc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stats.TotalRatings)
	assert.InDelta(t, float64(p.Rating.Stars), stored.Stats.AverageRating, 1e-9)
}

func TestService_Dashboard(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Bob", "bob@oasis.test", user.RoleEmployee, "Engineering")
	usr.Stats = core.Streak{Current: 2, Longest: 4}

	stats, err := env.ProgressSvc.Dashboard(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, progress.DashboardStats{CurrentStreak: 2, LongestStreak: 4}, stats)

	done := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Done", "Engineering"))
	started := testutil.CreateCourse(t, env.CourseRepo, testutil.NewCourse("Started", "Engineering"))
	for _, c := range []course.Course{done, started} {
		_, err = env.ProgressSvc.Enroll(ctx, usr, c)
		require.NoError(t, err)
	}
	completeCourse(t, env, usr, done)
	_, err = env.ProgressSvc.IssueCertificate(ctx, usr, done.ID)
	require.NoError(t, err)
	_, err = env.ProgressSvc.Update(ctx, usr.ID, started.ID, progress.UpdateProgress{
		Lessons:   []progress.LessonUpdate{{LessonID: started.Lessons[0].ID, Status: progress.StatusCompleted, TimeSpent: 15}},
		TimeSpent: 5,
	})
	require.NoError(t, err)

	stats, err = env.ProgressSvc.Dashboard(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, progress.DashboardStats{
		TotalCourses:      2,
		CompletedCourses:  1,
		InProgressCourses: 1,
		TotalTimeSpent:    20,
		AverageScore:      50,
		Certificates:      1,
		CurrentStreak:     2,
		LongestStreak:     4,
	}, stats)
}
