package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/oasis-elearning/oasis/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

// find must be called with the table lock held.
func (repo *progressRepository) find(userID, courseID string) *progress.Progress {
	for _, p := range repo.db.progress.table {
		if p.UserID == userID && p.CourseID == courseID {
			return p
		}
	}
	return nil
}

// CreateProgress checks the (user, course) pair and inserts under a single lock.
func (repo *progressRepository) CreateProgress(_ context.Context, p progress.Progress) (progress.Progress, error) {
	repo.db.progress.Lock()
	defer repo.db.progress.Unlock()

	if repo.find(p.UserID, p.CourseID) != nil {
		return progress.Progress{}, progress.ErrAlreadyEnrolled
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	stored := clone(p)
	repo.db.progress.table[p.ID] = &stored
	return p, nil
}

func (repo *progressRepository) GetProgress(_ context.Context, userID, courseID string) (progress.Progress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()

	if p := repo.find(userID, courseID); p != nil {
		return clone(*p), nil
	}
	return progress.Progress{}, progress.ErrNotFound
}

func (repo *progressRepository) GetProgressByID(_ context.Context, id string) (progress.Progress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()

	if p, ok := repo.db.progress.table[id]; ok {
		return clone(*p), nil
	}
	return progress.Progress{}, progress.ErrNotFound
}

func (repo *progressRepository) QueryProgress(_ context.Context, filter progress.QueryFilter) ([]progress.Progress, error) {
	repo.db.progress.RLock()
	defer repo.db.progress.RUnlock()

	records := make([]progress.Progress, 0)
	for _, p := range repo.db.progress.table {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.CourseID != "" && p.CourseID != filter.CourseID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		records = append(records, clone(*p))
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastAccessedAt.After(records[j].LastAccessedAt)
	})
	return records, nil
}

func (repo *progressRepository) UpdateProgress(_ context.Context, p progress.Progress) (progress.Progress, error) {
	repo.db.progress.Lock()
	defer repo.db.progress.Unlock()

	orig, ok := repo.db.progress.table[p.ID]
	if !ok {
		return progress.Progress{}, progress.ErrNotFound
	}
	p.UserID = orig.UserID
	p.CourseID = orig.CourseID
	p.EnrolledAt = orig.EnrolledAt
	p.CreatedAt = orig.CreatedAt

	stored := clone(p)
	repo.db.progress.table[p.ID] = &stored
	return p, nil
}

func (repo *progressRepository) DeleteProgress(_ context.Context, id string) error {
	repo.db.progress.Lock()
	defer repo.db.progress.Unlock()
	delete(repo.db.progress.table, id)
	return nil
}
