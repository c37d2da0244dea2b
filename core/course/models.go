package course

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/oasis-elearning/oasis/core"
)

// Categories
const (
	CategoryTechnicalSkills         = "Technical Skills"
	CategorySoftSkills              = "Soft Skills"
	CategoryCompliance              = "Compliance"
	CategoryLeadership              = "Leadership"
	CategorySafety                  = "Safety"
	CategoryProfessionalDevelopment = "Professional Development"
	CategoryIndustrySpecific        = "Industry Specific"
	CategoryOnboarding              = "Onboarding"
)

// Levels
const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

// Lesson content types
const (
	ContentVideo       = "video"
	ContentText        = "text"
	ContentInteractive = "interactive"
	ContentPDF         = "pdf"
	ContentSCORM       = "scorm"
)

// AllDepartments is the course department open to every user.
const AllDepartments = "All"

const (
	DefaultPassingScore       = 70
	DefaultQuizTimeLimit      = 30 // minutes
	DefaultQuestionPoints     = 1
	DefaultCertValidityMonths = 12
)

var (
	AllCategories = []string{
		CategoryTechnicalSkills, CategorySoftSkills, CategoryCompliance, CategoryLeadership,
		CategorySafety, CategoryProfessionalDevelopment, CategoryIndustrySpecific, CategoryOnboarding,
	}
	AllLevels       = []string{LevelBeginner, LevelIntermediate, LevelAdvanced}
	AllContentTypes = []string{ContentVideo, ContentText, ContentInteractive, ContentPDF, ContentSCORM}
)

type (
	Course struct {
		ID                 string        `json:"id"`
		Title              string        `json:"title"`
		Description        string        `json:"description"`
		Thumbnail          string        `json:"thumbnail"`
		Category           string        `json:"category"`
		Department         string        `json:"department"`
		Level              string        `json:"level"`
		Duration           int           `json:"duration"` // minutes, sum of lesson durations
		Instructor         Instructor    `json:"instructor"`
		Lessons            []Lesson      `json:"lessons"`
		Prerequisites      []string      `json:"prerequisites"`
		Tags               []string      `json:"tags"`
		LearningObjectives []string      `json:"learning_objectives"`
		Certification      Certification `json:"certification"`
		Enrollment         Enrollment    `json:"enrollment"`
		Settings           Settings      `json:"settings"`
		Stats              Stats         `json:"stats"`
		IsPublished        bool          `json:"is_published"`
		PublishedAt        *time.Time    `json:"published_at"`
		CreatedBy          string        `json:"created_by"`
		LastUpdatedBy      string        `json:"last_updated_by"`
		CreatedAt          time.Time     `json:"created_at"`
		UpdatedAt          time.Time     `json:"updated_at"`
	}

	Instructor struct {
		Name        string   `json:"name" validate:"required,notblank,max=100"`
		Bio         string   `json:"bio" validate:"max=1000"`
		Avatar      string   `json:"avatar" validate:"omitempty,max=500"`
		Credentials []string `json:"credentials"`
	}

	Lesson struct {
		ID          string     `json:"id"`
		Title       string     `json:"title" validate:"required,notblank,max=200"`
		Description string     `json:"description" validate:"max=1000"`
		Content     string     `json:"content" validate:"required"`
		ContentType string     `json:"content_type" validate:"required,contenttype"`
		Duration    int        `json:"duration" validate:"min=0"` // minutes
		Order       int        `json:"order" validate:"min=0"`
		Resources   []Resource `json:"resources" validate:"dive"`
		Quiz        *Quiz      `json:"quiz,omitempty"`
	}

	Resource struct {
		Name string `json:"name" validate:"required"`
		URL  string `json:"url" validate:"required,url"`
		Type string `json:"type"`
	}

	Quiz struct {
		Questions    []Question `json:"questions" validate:"required,min=1,dive"`
		PassingScore int        `json:"passing_score" validate:"min=0,max=100"`
		TimeLimit    int        `json:"time_limit" validate:"min=0"` // minutes
	}

	Question struct {
		ID          string   `json:"id"`
		Question    string   `json:"question" validate:"required,notblank"`
		Options     []Option `json:"options" validate:"min=2,dive"`
		Explanation string   `json:"explanation"`
		Points      int      `json:"points" validate:"min=0"`
	}

	Option struct {
		Text      string `json:"text" validate:"required"`
		IsCorrect bool   `json:"is_correct"`
	}

	Certification struct {
		IsAvailable    bool   `json:"is_available"`
		Template       string `json:"template"`
		ValidityPeriod int    `json:"validity_period" validate:"min=0"` // months
		CPDPoints      int    `json:"cpd_points" validate:"min=0"`
	}

	Enrollment struct {
		IsOpen     bool       `json:"is_open"`
		Capacity   int        `json:"capacity"` // 0 = unlimited
		Enrolled   int        `json:"enrolled"`
		StartDate  *time.Time `json:"start_date"`
		EndDate    *time.Time `json:"end_date"`
		CompleteBy *time.Time `json:"complete_by"` // unfinished progress fails past this date
	}

	Settings struct {
		AllowDiscussions            bool `json:"allow_discussions"`
		TrackProgress               bool `json:"track_progress"`
		ShowLeaderboard             bool `json:"show_leaderboard"`
		RequireSequentialCompletion bool `json:"require_sequential_completion"`
	}

	Stats struct {
		AverageRating         float64 `json:"average_rating"`
		TotalRatings          int     `json:"total_ratings"`
		CompletionRate        float64 `json:"completion_rate"`
		AverageCompletionTime float64 `json:"average_completion_time"`
	}
)

// TotalLessons returns the number of lessons in the course.
func (c *Course) TotalLessons() int { return len(c.Lessons) }

// Lesson returns the lesson identified by `id`.
func (c *Course) Lesson(id string) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return Lesson{}, false
}

// Normalize orders lessons, assigns missing ids and quiz defaults, then recomputes Duration.
// Every write path calls it before persisting.
func (c *Course) Normalize() {
	for i := range c.Lessons {
		l := &c.Lessons[i]
		if _, err := uuid.Parse(l.ID); err != nil {
			l.ID = uuid.NewString()
		}
		if l.Order == 0 {
			l.Order = i + 1
		}
		if l.Quiz != nil {
			l.Quiz.normalize()
		}
	}
	sort.SliceStable(c.Lessons, func(i, j int) bool { return c.Lessons[i].Order < c.Lessons[j].Order })
	c.RecomputeDuration()
}

// RecomputeDuration sets Duration to the sum of the lesson durations.
func (c *Course) RecomputeDuration() {
	total := 0
	for _, l := range c.Lessons {
		total += l.Duration
	}
	c.Duration = total
}

// Deadline is the date after which unfinished progress fails, if any.
func (c *Course) Deadline() *time.Time {
	return c.Enrollment.CompleteBy
}

// CheckEnrollment reports whether a new enrollment may be created at `now`.
// Capacity is checked again atomically by the storage layer.
func (c *Course) CheckEnrollment(now time.Time) error {
	e := c.Enrollment
	switch {
	case !e.IsOpen:
		return ErrEnrollmentClosed
	case e.StartDate != nil && now.Before(*e.StartDate):
		return ErrEnrollmentNotStarted
	case e.EndDate != nil && now.After(*e.EndDate):
		return ErrEnrollmentClosed
	case e.CompleteBy != nil && now.After(*e.CompleteBy):
		return ErrEnrollmentClosed
	case e.Capacity > 0 && e.Enrolled >= e.Capacity:
		return ErrCourseFull
	}
	return nil
}

// ValidUntil returns when a certificate issued at `issuedAt` expires.
func (cert Certification) ValidUntil(issuedAt time.Time) time.Time {
	months := cert.ValidityPeriod
	if months <= 0 {
		months = DefaultCertValidityMonths
	}
	return issuedAt.AddDate(0, months, 0)
}

func (q *Quiz) normalize() {
	if q.PassingScore == 0 {
		q.PassingScore = DefaultPassingScore
	}
	if q.TimeLimit == 0 {
		q.TimeLimit = DefaultQuizTimeLimit
	}
	for i := range q.Questions {
		qn := &q.Questions[i]
		if _, err := uuid.Parse(qn.ID); err != nil {
			qn.ID = uuid.NewString()
		}
		if qn.Points == 0 {
			qn.Points = DefaultQuestionPoints
		}
	}
}

// TotalPoints is the score of a quiz answered without mistakes.
func (q *Quiz) TotalPoints() int {
	total := 0
	for _, qn := range q.Questions {
		total += qn.Points
	}
	return total
}

// CorrectAnswer returns the text of the first option marked correct.
func (qn *Question) CorrectAnswer() string {
	for _, o := range qn.Options {
		if o.IsCorrect {
			return o.Text
		}
	}
	return ""
}

// IsCorrect reports whether `answer` is the text of an option marked correct.
func (qn *Question) IsCorrect(answer string) bool {
	answer = core.CleanString(answer)
	for _, o := range qn.Options {
		if o.IsCorrect && core.CleanString(o.Text) == answer {
			return true
		}
	}
	return false
}

// CourseInput holds the editable fields of a course, as sent on create and update.
type CourseInput struct {
	Title              string           `json:"title" validate:"required,notblank,max=100"`
	Description        string           `json:"description" validate:"required,notblank,max=1000"`
	Thumbnail          string           `json:"thumbnail" validate:"max=500"`
	Category           string           `json:"category" validate:"required,coursecategory"`
	Department         string           `json:"department" validate:"required,notblank,max=100"`
	Level              string           `json:"level" validate:"required,courselevel"`
	Instructor         Instructor       `json:"instructor"`
	Lessons            []Lesson         `json:"lessons" validate:"dive"`
	Prerequisites      []string         `json:"prerequisites" validate:"dive,uuid"`
	Tags               []string         `json:"tags" validate:"dive,max=50"`
	LearningObjectives []string         `json:"learning_objectives" validate:"dive,required"`
	Certification      *Certification   `json:"certification"`
	Enrollment         *EnrollmentInput `json:"enrollment"`
	Settings           *Settings        `json:"settings"`
	IsPublished        bool             `json:"is_published"`
}

type EnrollmentInput struct {
	IsOpen     *bool      `json:"is_open"`
	Capacity   int        `json:"capacity" validate:"min=0"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
	CompleteBy *time.Time `json:"complete_by"`
}

func (in *CourseInput) clean() {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	in.Category = core.CleanString(in.Category)
	in.Department = core.CleanString(in.Department)
	in.Level = core.CleanString(in.Level)
	in.Instructor.Name = core.CleanString(in.Instructor.Name)
	in.Tags = core.CleanStrings(in.Tags, true /* lower */)
	in.Prerequisites = core.CleanStrings(in.Prerequisites)
	for i := range in.Lessons {
		in.Lessons[i].Title = core.CleanString(in.Lessons[i].Title)
		in.Lessons[i].ContentType = core.CleanString(in.Lessons[i].ContentType, true /* lower */)
	}
}

// apply copies the input onto `c`, filling defaults for omitted sections.
// Counters and stats are left untouched.
func (in *CourseInput) apply(c *Course) {
	c.Title = in.Title
	c.Description = in.Description
	c.Thumbnail = in.Thumbnail
	c.Category = in.Category
	c.Department = in.Department
	c.Level = in.Level
	c.Instructor = in.Instructor
	c.Lessons = in.Lessons
	c.Prerequisites = nonNil(in.Prerequisites)
	c.Tags = nonNil(in.Tags)
	c.LearningObjectives = nonNil(in.LearningObjectives)

	if in.Certification != nil {
		c.Certification = *in.Certification
	} else if c.ID == "" {
		c.Certification = Certification{IsAvailable: true}
	}
	if c.Certification.ValidityPeriod == 0 {
		c.Certification.ValidityPeriod = DefaultCertValidityMonths
	}

	if in.Enrollment != nil {
		c.Enrollment.IsOpen = in.Enrollment.IsOpen == nil || *in.Enrollment.IsOpen
		c.Enrollment.Capacity = in.Enrollment.Capacity
		c.Enrollment.StartDate = in.Enrollment.StartDate
		c.Enrollment.EndDate = in.Enrollment.EndDate
		c.Enrollment.CompleteBy = in.Enrollment.CompleteBy
	} else if c.ID == "" {
		c.Enrollment.IsOpen = true
	}

	if in.Settings != nil {
		c.Settings = *in.Settings
	} else if c.ID == "" {
		c.Settings = Settings{AllowDiscussions: true, TrackProgress: true, ShowLeaderboard: true}
	}

	c.IsPublished = in.IsPublished
	if c.IsPublished && c.PublishedAt == nil {
		now := c.UpdatedAt
		c.PublishedAt = &now
	}
}

type QueryFilter struct {
	Search     string `query:"search"`
	Category   string `query:"category"`
	Department string `query:"department"` // matches the department or AllDepartments
	Level      string `query:"level"`

	IncludeUnpublished bool `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
	qf.Department = core.CleanString(qf.Department)
	qf.Level = core.CleanString(qf.Level)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
