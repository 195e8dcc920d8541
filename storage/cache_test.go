package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"dataflow-api/domain"
)

type fakeBackend struct {
	mu           sync.Mutex
	tasks        map[string][]domain.Task
	projects     map[string][]domain.Project
	taskLists    int
	projectLists int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tasks:    make(map[string][]domain.Task),
		projects: make(map[string][]domain.Project),
	}
}

func (f *fakeBackend) ListTasks(ctx context.Context, accountID, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskLists++
	return f.tasks[accountID+"/"+projectID], nil
}

func (f *fakeBackend) InsertTask(ctx context.Context, accountID string, t domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := accountID + "/" + t.ProjectID
	f.tasks[key] = append(f.tasks[key], t)
	return nil
}

func (f *fakeBackend) UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error {
	return nil
}

func (f *fakeBackend) DeleteTask(ctx context.Context, accountID, taskID string) error {
	return nil
}

func (f *fakeBackend) ListProjects(ctx context.Context, accountID string) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectLists++
	return f.projects[accountID], nil
}

func (f *fakeBackend) InsertProject(ctx context.Context, p domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.Owner] = append(f.projects[p.Owner], p)
	return nil
}

func (f *fakeBackend) DeleteProject(ctx context.Context, accountID, projectID string) error {
	return nil
}

func (f *fakeBackend) EnqueueCommands(ctx context.Context, accountID string, cmds []domain.Command) error {
	return nil
}

func (f *fakeBackend) TaskLists() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taskLists
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewCache(base, client, time.Minute), m
}

func TestCacheListTasksServedFromRedis(t *testing.T) {
	base := newFakeBackend()
	base.tasks["acct/p1"] = []domain.Task{{ID: "t1", ProjectID: "p1", Status: domain.ColumnTodo}}
	cache, _ := newTestCache(t, base)
	ctx := context.Background()

	first, err := cache.ListTasks(ctx, "acct", "p1")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(first) != 1 || first[0].ID != "t1" {
		t.Fatalf("unexpected tasks %v", first)
	}

	second, err := cache.ListTasks(ctx, "acct", "p1")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("unexpected cached tasks %v", second)
	}
	if base.TaskLists() != 1 {
		t.Fatalf("expected one backend read, got %d", base.TaskLists())
	}
}

func TestCacheInsertTaskEvictsProject(t *testing.T) {
	base := newFakeBackend()
	cache, _ := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx, "acct", "p1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := cache.InsertTask(ctx, "acct", domain.Task{ID: "t1", ProjectID: "p1", Status: domain.ColumnTodo}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, "acct", "p1")
	if err != nil {
		t.Fatalf("list after insert: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected fresh read after eviction, got %v", tasks)
	}
	if base.TaskLists() != 2 {
		t.Fatalf("expected two backend reads, got %d", base.TaskLists())
	}
}

func TestCacheUpdateTaskEvictsAllAccountProjects(t *testing.T) {
	base := newFakeBackend()
	base.tasks["acct/p1"] = []domain.Task{{ID: "t1", ProjectID: "p1"}}
	base.tasks["acct/p2"] = []domain.Task{{ID: "t2", ProjectID: "p2"}}
	cache, m := newTestCache(t, base)
	ctx := context.Background()

	if _, err := cache.ListTasks(ctx, "acct", "p1"); err != nil {
		t.Fatalf("warm p1: %v", err)
	}
	if _, err := cache.ListTasks(ctx, "acct", "p2"); err != nil {
		t.Fatalf("warm p2: %v", err)
	}

	status := domain.ColumnDone
	if err := cache.UpdateTask(ctx, "acct", "t1", domain.TaskPatch{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if m.Exists(tasksCacheKey("acct", "p1")) || m.Exists(tasksCacheKey("acct", "p2")) {
		t.Fatal("expected all account task caches to be evicted")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	base := newFakeBackend()
	base.tasks["acct/p1"] = []domain.Task{{ID: "t1", ProjectID: "p1"}}
	cache, m := newTestCache(t, base)
	ctx := context.Background()

	if err := m.Set(tasksCacheKey("acct", "p1"), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tasks, err := cache.ListTasks(ctx, "acct", "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("expected backend read, got %v", tasks)
	}
}

func TestCacheProjectsRoundTrip(t *testing.T) {
	base := newFakeBackend()
	cache, _ := newTestCache(t, base)
	ctx := context.Background()

	p := domain.Project{ID: "p1", Name: "Website", Owner: "acct", CreatedAt: time.Now().UTC()}
	if err := cache.InsertProject(ctx, p); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	projects, err := cache.ListProjects(ctx, "acct")
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("unexpected projects %v", projects)
	}

	again, err := cache.ListProjects(ctx, "acct")
	if err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("unexpected cached projects %v", again)
	}
	base.mu.Lock()
	lists := base.projectLists
	base.mu.Unlock()
	if lists != 1 {
		t.Fatalf("expected one backend read, got %d", lists)
	}
}
