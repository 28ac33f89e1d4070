package tasks

import (
	"fmt"
	"sync"

	"github.com/desertthunder/stash/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase enumerates the stages of an acquisition and the bulk operations built on it.
type Phase int

const (
	Lookup Phase = iota
	Resolve
	Convert
	Transfer
	Store
	Record
	FetchLiked
	BulkAcquire
)

func (p Phase) String() string {
	switch p {
	case Lookup:
		return "lookup"
	case Resolve:
		return "resolve"
	case Convert:
		return "convert"
	case Transfer:
		return "transfer"
	case Store:
		return "store"
	case Record:
		return "record"
	case FetchLiked:
		return "fetch_liked"
	case BulkAcquire:
		return "bulk_acquire"
	default:
		return ""
	}
}

// acquireSteps is the number of stages a full acquisition passes through.
const acquireSteps = 6

func stageUpdate(phase Phase, ref string) ProgressUpdate {
	var msg string
	switch phase {
	case Lookup:
		msg = fmt.Sprintf("Checking library for %s...", ref)
	case Resolve:
		msg = fmt.Sprintf("Resolving catalog URL for %s...", ref)
	case Convert:
		msg = "Requesting conversion..."
	case Transfer:
		msg = "Downloading audio..."
	case Store:
		msg = "Storing audio..."
	case Record:
		msg = "Recording acquisition..."
	}
	return ProgressUpdate{Phase: phase, Step: int(phase) + 1, Total: acquireSteps, Message: msg}
}

func alreadyAcquiredUpdate(rec *models.AcquisitionRecord) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Lookup,
		Step:    acquireSteps,
		Total:   acquireSteps,
		Message: fmt.Sprintf("Already acquired: %s - %s", rec.Artist, rec.Title),
		Data:    rec,
	}
}

func acquiredUpdate(rec *models.AcquisitionRecord) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Record,
		Step:    acquireSteps,
		Total:   acquireSteps,
		Message: fmt.Sprintf("Acquired: %s - %s", rec.Artist, rec.Title),
		Data:    rec,
	}
}

func fetchLikedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLiked,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d saved tracks", count),
	}
}

func bulkCompletedUpdate(step, total int, res TrackAcquireResult) ProgressUpdate {
	update := ProgressUpdate{Phase: BulkAcquire, Step: step, Total: total, Data: res}
	switch {
	case res.Error != nil:
		update.Message = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.TrackRef, res.Error)
	case res.Existing:
		update.Message = fmt.Sprintf("[%d/%d] = %s - %s", step, total, res.Record.Artist, res.Record.Title)
	default:
		update.Message = fmt.Sprintf("[%d/%d] ✓ %s - %s", step, total, res.Record.Artist, res.Record.Title)
	}
	return update
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// progressRelay forwards updates from a shared acquisition run to the caller that started it,
// until that caller stops waiting and may close its channel.
type progressRelay struct {
	mu sync.Mutex
	ch chan<- ProgressUpdate
}

func (r *progressRelay) send(update ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sendProgress(r.ch, update)
}

func (r *progressRelay) detach() {
	r.mu.Lock()
	r.ch = nil
	r.mu.Unlock()
}
