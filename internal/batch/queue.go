// Package batch holds the folder queue and the orchestrator that drives it
// through the inference endpoint, one image at a time.
package batch

import (
	"sync"

	"captiond/pkg/types"
)

// Queue is the ordered collection of folder work-items. Folder paths are not
// deduplicated; duplicates are tracked independently. All mutation goes
// through the queue's own lock, so the orchestrator goroutine and the HTTP
// handlers never touch an item concurrently.
type Queue struct {
	mu     sync.Mutex
	nextID int
	items  []*types.WorkItem
}

// NewQueue creates an empty queue.
func NewQueue() *Queue { return &Queue{} }

// Add appends a new pending item and returns a snapshot of it.
func (q *Queue) Add(folderPath, prompt string) types.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	it := &types.WorkItem{
		ID:         q.nextID,
		FolderPath: folderPath,
		Prompt:     prompt,
		Status:     types.ItemPending,
	}
	q.items = append(q.items, it)
	return *it
}

// Remove deletes the item with the given id. It is a silent no-op while the
// item is Processing, to avoid orphaning in-flight work. Reports whether the
// item was removed.
func (q *Queue) Remove(id int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID != id {
			continue
		}
		if it.Status == types.ItemProcessing {
			return false
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return true
	}
	return false
}

// SetPrompt updates an item's prompt. Allowed at any time; the orchestrator
// reads the prompt at the moment the folder begins processing, so edits up to
// that point apply and later edits do not affect in-flight requests.
func (q *Queue) SetPrompt(id int, prompt string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it := q.find(id); it != nil {
		it.Prompt = prompt
		return true
	}
	return false
}

// Items returns the queue in insertion order.
func (q *Queue) Items() []types.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.WorkItem, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}

// Get returns a snapshot of one item.
func (q *Queue) Get(id int) (types.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it := q.find(id); it != nil {
		return *it, true
	}
	return types.WorkItem{}, false
}

// ids returns the insertion-ordered item ids; this fixes processing order and
// the progress denominator for a run.
func (q *Queue) ids() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.items))
	for i, it := range q.items {
		out[i] = it.ID
	}
	return out
}

func (q *Queue) setStatus(id int, st types.ItemStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it := q.find(id); it != nil {
		it.Status = st
	}
}

func (q *Queue) setProgress(id, done, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it := q.find(id); it != nil {
		it.Done, it.Total = done, total
	}
}

// find must be called with q.mu held.
func (q *Queue) find(id int) *types.WorkItem {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}
