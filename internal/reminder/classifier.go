package reminder

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

// DefaultWindows are one hour, one day and two days before the due time.
var DefaultWindows = []int64{3600, 86400, 172800}

// Buckets maps a window's upper boundary (seconds until due) to the tasks in
// the half-open interval (previous boundary, boundary].
type Buckets map[int64][]*task.Task

// Windows returns the boundaries in ascending order.
func (b Buckets) Windows() []int64 {
	ws := make([]int64, 0, len(b))
	for w := range b {
		ws = append(ws, w)
	}
	slices.Sort(ws)
	return ws
}

func (b Buckets) Len() int {
	n := 0
	for _, ts := range b {
		n += len(ts)
	}
	return n
}

// NormalizeWindows sorts boundaries and drops duplicates. Every boundary must
// be positive.
func NormalizeWindows(boundaries []int64) ([]int64, error) {
	if len(boundaries) == 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "at least one reminder window is required", nil)
	}
	ws := slices.Clone(boundaries)
	slices.Sort(ws)
	ws = slices.Compact(ws)
	if ws[0] <= 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("reminder window must be positive, got %d", ws[0]), nil)
	}
	return ws, nil
}

// UntilDue is the whole number of seconds from now to the task's due time.
func UntilDue(t *task.Task, now time.Time) int64 {
	return t.DueAt.Unix() - now.Unix()
}

// Classify places each task into the smallest window whose boundary is at
// least its time until due. Overdue tasks and tasks beyond the largest window
// are left out. Tasks keep their input order within a bucket.
func Classify(tasks []*task.Task, boundaries []int64, now time.Time) (Buckets, error) {
	ws, err := NormalizeWindows(boundaries)
	if err != nil {
		return nil, err
	}
	buckets := make(Buckets, len(ws))
	for _, w := range ws {
		buckets[w] = []*task.Task{}
	}
	for _, t := range tasks {
		untilDue := UntilDue(t, now)
		if untilDue <= 0 {
			continue
		}
		i := sort.Search(len(ws), func(i int) bool { return ws[i] >= untilDue })
		if i == len(ws) {
			continue
		}
		buckets[ws[i]] = append(buckets[ws[i]], t)
	}
	return buckets, nil
}
