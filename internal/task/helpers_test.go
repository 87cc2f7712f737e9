package task_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskforest/internal/task"
	"github.com/kazz187/taskforest/internal/task/repositoryimpl"
	"github.com/kazz187/taskforest/pkg/storage"
)

var errDiskFull = errors.New("disk full")

// faultStorage counts writes and fails reads or writes for chosen paths.
type faultStorage struct {
	storage.Storage

	mu         sync.Mutex
	writes     int
	failWrites map[string]error
	failReads  map[string]error
}

func (s *faultStorage) Write(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	err := s.failWrites[path]
	if err == nil {
		s.writes++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Storage.Write(ctx, path, data)
}

func (s *faultStorage) Read(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	err := s.failReads[path]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Storage.Read(ctx, path)
}

func (s *faultStorage) failWrite(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites["tasks/"+id+".yaml"] = err
}

func (s *faultStorage) failRead(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads["tasks/"+id+".yaml"] = err
}

func (s *faultStorage) clearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = map[string]error{}
	s.failReads = map[string]error{}
}

func (s *faultStorage) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

type fixture struct {
	fs   *faultStorage
	repo *repositoryimpl.YAMLRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	fs := &faultStorage{Storage: local, failWrites: map[string]error{}, failReads: map[string]error{}}
	return &fixture{fs: fs, repo: repositoryimpl.NewYAMLRepository(fs)}
}

var baseTime = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// node describes a stored task; members are written as "u1,u2".
type node struct {
	id         string
	parent     string
	children   string
	members    string
	unfinished string
	state      task.State
	due        time.Duration
}

func split(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func (f *fixture) put(t *testing.T, nodes ...node) {
	t.Helper()
	for _, n := range nodes {
		state := n.state
		if state == "" {
			state = task.StateActive
		}
		members := split(n.members)
		owner := ""
		if len(members) > 0 {
			owner = members[0]
		}
		require.NoError(t, f.repo.Create(context.Background(), &task.Task{
			ID:                n.id,
			Owner:             owner,
			Name:              "task " + n.id,
			State:             state,
			Parent:            n.parent,
			Children:          split(n.children),
			Members:           members,
			UnfinishedMembers: split(n.unfinished),
			DueAt:             baseTime.Add(n.due),
			CreatedAt:         baseTime,
			UpdatedAt:         baseTime,
		}))
	}
}

func (f *fixture) get(t *testing.T, id string) *task.Task {
	t.Helper()
	got, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

// assertSubsetInvariant checks UnfinishedMembers ⊆ Members on every stored task.
func (f *fixture) assertSubsetInvariant(t *testing.T) {
	t.Helper()
	all, err := f.repo.List(context.Background(), task.Filter{})
	require.NoError(t, err)
	for _, tk := range all {
		for _, m := range tk.UnfinishedMembers {
			assert.Contains(t, tk.Members, m, "task %s: unfinished member %s is not a member", tk.ID, m)
		}
	}
}
