package schedule

import (
	"fmt"
	"time"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/pkg/cerr"
)

// DefaultExpectedDuration is used for tasks without an estimate (seconds).
const DefaultExpectedDuration = 3600.0

// Request is the optimizer input. Index i of every vector describes the same
// task.
type Request struct {
	ExpectedDuration []float64 `json:"expectedDuration"`
	Penalty          []float64 `json:"penalty"`
	SecondsUntilDue  []int64   `json:"secondsUntilDue"`
	TaskIDs          []string  `json:"taskIds"`
	AlgorithmID      int       `json:"algorithmId"`
}

// ResultEntry is one slot of the optimizer's ordering. It names its task by
// id, or by position in the request when TaskID is empty.
type ResultEntry struct {
	TaskID      string  `json:"taskId,omitempty"`
	Index       *int    `json:"index,omitempty"`
	StartOffset float64 `json:"startOffset"`
	Duration    float64 `json:"duration"`
}

type ScheduledTask struct {
	TaskID      string  `json:"taskId"`
	Name        string  `json:"name"`
	StartOffset float64 `json:"startOffset"`
	Duration    float64 `json:"duration"`
}

func BuildRequest(tasks []*task.Task, now time.Time, algorithmID int) *Request {
	req := &Request{
		ExpectedDuration: make([]float64, 0, len(tasks)),
		Penalty:          make([]float64, 0, len(tasks)),
		SecondsUntilDue:  make([]int64, 0, len(tasks)),
		TaskIDs:          make([]string, 0, len(tasks)),
		AlgorithmID:      algorithmID,
	}
	for _, t := range tasks {
		duration := DefaultExpectedDuration
		if t.ExpectedDuration != nil {
			duration = *t.ExpectedDuration
		}
		var penalty float64
		if t.Penalty != nil {
			penalty = *t.Penalty
		}
		req.ExpectedDuration = append(req.ExpectedDuration, duration)
		req.Penalty = append(req.Penalty, penalty)
		req.SecondsUntilDue = append(req.SecondsUntilDue, t.DueAt.Unix()-now.Unix())
		req.TaskIDs = append(req.TaskIDs, t.ID)
	}
	return req
}

func (r *Request) Len() int {
	return len(r.TaskIDs)
}

// MapResult resolves the optimizer's ordering back to task ids, keeping the
// optimizer's order. names is optional.
func (r *Request) MapResult(entries []ResultEntry, names map[string]string) ([]ScheduledTask, error) {
	known := make(map[string]struct{}, len(r.TaskIDs))
	for _, id := range r.TaskIDs {
		known[id] = struct{}{}
	}
	out := make([]ScheduledTask, 0, len(entries))
	for i, e := range entries {
		id := e.TaskID
		switch {
		case id != "":
			if _, ok := known[id]; !ok {
				return nil, cerr.NewError(cerr.Internal, "optimizer returned an unknown task", fmt.Errorf("entry %d: task %q was not in the request", i, id))
			}
		case e.Index != nil:
			if *e.Index < 0 || *e.Index >= len(r.TaskIDs) {
				return nil, cerr.NewError(cerr.Internal, "optimizer returned an unknown task", fmt.Errorf("entry %d: index %d out of range [0,%d)", i, *e.Index, len(r.TaskIDs)))
			}
			id = r.TaskIDs[*e.Index]
		default:
			return nil, cerr.NewError(cerr.Internal, "optimizer returned an unknown task", fmt.Errorf("entry %d has neither taskId nor index", i))
		}
		out = append(out, ScheduledTask{
			TaskID:      id,
			Name:        names[id],
			StartOffset: e.StartOffset,
			Duration:    e.Duration,
		})
	}
	return out, nil
}
