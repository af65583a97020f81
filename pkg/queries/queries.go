// Package queries holds ad-hoc follow-up items drafted during a transition and persists
// them after the transition commits.
package queries

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"stageflow/pkg/backend"
	"stageflow/pkg/logx"
	"stageflow/pkg/model"
)

// Failure is one item that could not be persisted.
type Failure struct {
	Item model.QueryItem
	Err  error
}

// Report lists what PersistAll did, in item order.
type Report struct {
	Succeeded []model.QueryItem
	Failed    []Failure
}

// Attempted returns how many items were sent to the backend.
func (r Report) Attempted() int {
	return len(r.Succeeded) + len(r.Failed)
}

// Batch is the locally held list of pending queries.
type Batch struct {
	items  []model.QueryItem
	logger *logx.Logger
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{logger: logx.NewLogger("queries")}
}

// Add appends item and returns its local id.
func (b *Batch) Add(item model.QueryItem) string {
	item.LocalID = uuid.NewString()
	b.items = append(b.items, item)
	return item.LocalID
}

// Update replaces the item with localID. It reports whether the item was found.
func (b *Batch) Update(localID string, item model.QueryItem) bool {
	for i := range b.items {
		if b.items[i].LocalID == localID {
			item.LocalID = localID
			b.items[i] = item
			return true
		}
	}
	return false
}

// Remove deletes the item with localID.
func (b *Batch) Remove(localID string) bool {
	for i := range b.items {
		if b.items[i].LocalID == localID {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns a copy of the pending items.
func (b *Batch) Items() []model.QueryItem {
	return append([]model.QueryItem(nil), b.items...)
}

// Len returns the number of pending items.
func (b *Batch) Len() int {
	return len(b.items)
}

// Reset discards every pending item.
func (b *Batch) Reset() {
	b.items = nil
}

// Meaningful reports whether an item carries enough content to be worth persisting.
func Meaningful(item model.QueryItem) bool {
	return strings.TrimSpace(item.Title) != "" || strings.TrimSpace(item.Description) != ""
}

// PersistAll creates every meaningful item, one at a time in order. A failure does not
// stop the remaining items.
func (b *Batch) PersistAll(ctx context.Context, creator backend.QueryCreator, projectID string) Report {
	var report Report
	for _, item := range b.items {
		if !Meaningful(item) {
			continue
		}
		if err := creator.CreateQuery(ctx, projectID, item); err != nil {
			b.logger.Warn("failed to create query %q for project %s: %v", item.Title, projectID, err)
			report.Failed = append(report.Failed, Failure{Item: item, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, item)
	}
	return report
}
