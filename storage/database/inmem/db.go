// Package inmemdb keeps the domain tables in process memory. It backs the API when no
// database is configured, and the tests.
package inmemdb

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/progress"
	"github.com/oasis-elearning/oasis/core/user"
)

type (
	DB struct {
		user     *userTable
		course   *courseTable
		progress *progressTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	progressTable struct {
		sync.RWMutex
		table map[string]*progress.Progress
	}
)

func Open() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		course:   &courseTable{table: make(map[string]*course.Course)},
		progress: &progressTable{table: make(map[string]*progress.Progress)},
	}
}

// lessFunc compares two rows on a single field.
type lessFunc[T any] func(a, b T) int

// sortRows sorts `rows` following `ordering`, falling back to `fallback` when it is empty.
// Unknown fields are ignored.
func sortRows[T any](rows []T, ordering []core.DBOrdering, fields map[string]lessFunc[T], fallback core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{fallback}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := fields[ord.Field]
			if !ok {
				continue
			}
			c := cmp(rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func paginate[T any](rows []T, page core.Page) []T {
	if page.Limit <= 0 {
		return rows
	}
	start := page.Offset()
	if start >= len(rows) {
		return rows[:0]
	}
	end := start + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// containsFold reports whether `s` contains `substr`, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// clone deep-copies `v` so callers never share slices or pointers with a stored row.
func clone[T any](v T) T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err = json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}
