// Package cache holds the application's locally cached project list.
//
// The workflow mutates it only through BeginOptimistic, which returns a Snapshot that must
// be either committed or restored. One optimistic update may be in flight at a time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stageflow/pkg/backend"
	"stageflow/pkg/logx"
	"stageflow/pkg/model"
)

// Key names a cached resource that can be invalidated.
type Key string

// Cache keys.
const (
	KeyProjects      Key = "projects"
	KeyQueryCounters Key = "queries/counters"
)

// KeyProjectQueries is the key for one project's ad-hoc queries.
func KeyProjectQueries(projectID string) Key {
	return Key("projects/" + projectID + "/queries")
}

// ErrCommitInFlight is returned by BeginOptimistic while another snapshot is open.
var ErrCommitInFlight = errors.New("another optimistic update is in flight")

// ProjectCache is safe for concurrent use.
type ProjectCache struct {
	mu       sync.Mutex
	projects []model.Project
	stale    map[Key]bool
	inFlight bool
	logger   *logx.Logger
}

// New creates a cache seeded with projects.
func New(projects []model.Project) *ProjectCache {
	return &ProjectCache{
		projects: append([]model.Project(nil), projects...),
		stale:    make(map[Key]bool),
		logger:   logx.NewLogger("cache"),
	}
}

// Projects returns a copy of the cached list.
func (c *ProjectCache) Projects() []model.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Project(nil), c.projects...)
}

// Project returns one cached project.
func (c *ProjectCache) Project(id string) (model.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.projects[i], true
	}
	return model.Project{}, false
}

// Replace swaps in a freshly loaded list and clears the project-list staleness flag.
func (c *ProjectCache) Replace(projects []model.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = append([]model.Project(nil), projects...)
	delete(c.stale, KeyProjects)
}

// Invalidate marks keys stale so the next Refresh reloads them.
func (c *ProjectCache) Invalidate(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.stale[k] = true
	}
	c.logger.Debug("invalidated %v", keys)
}

// IsStale reports whether key has been invalidated since it was last loaded.
func (c *ProjectCache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale[key]
}

// Refresh reloads the project list when it is stale.
func (c *ProjectCache) Refresh(ctx context.Context, lister backend.ProjectLister) error {
	if !c.IsStale(KeyProjects) {
		return nil
	}
	projects, err := lister.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh project list: %w", err)
	}
	c.Replace(projects)
	return nil
}

func (c *ProjectCache) indexOf(id string) int {
	for i := range c.projects {
		if c.projects[i].ID == id {
			return i
		}
	}
	return -1
}

// Snapshot is the pre-update value of one cached project.
type Snapshot struct {
	cache     *ProjectCache
	projectID string
	prior     model.Project
	present   bool
	done      bool
}

// BeginOptimistic sets the cached project's status to status and returns the snapshot
// needed to undo it. A project absent from the cache is left absent.
func (c *ProjectCache) BeginOptimistic(projectID, status string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight {
		return nil, ErrCommitInFlight
	}
	c.inFlight = true

	snap := &Snapshot{cache: c, projectID: projectID}
	if i := c.indexOf(projectID); i >= 0 {
		snap.prior = c.projects[i]
		snap.present = true
		c.projects[i].Status = status
	}
	return snap, nil
}

// Commit makes the optimistic value authoritative.
func (s *Snapshot) Commit() {
	s.finish(false)
}

// Restore puts the prior value back verbatim.
func (s *Snapshot) Restore() {
	s.finish(true)
}

func (s *Snapshot) finish(restore bool) {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	c.inFlight = false

	if !restore || !s.present {
		return
	}
	if i := c.indexOf(s.projectID); i >= 0 {
		c.projects[i] = s.prior
		c.logger.Info("rolled back cached project %s to status %q", s.projectID, s.prior.Status)
	}
}
