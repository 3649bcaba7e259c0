package tasks

import (
	"fmt"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/dustin/go-humanize"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Key     string // Resource key of the item the update is about, if any
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data: the *models.Item for Transfer, the Outcome for Finalize
}

// Operation phase enumeration
type Phase int

const (
	Recover Phase = iota
	Sweep
	Batch
	Transfer
	Finalize
	FetchCatalog
	Reconcile
)

func (p Phase) String() string {
	switch p {
	case Recover:
		return "recover"
	case Sweep:
		return "sweep"
	case Batch:
		return "batch"
	case Transfer:
		return "transfer"
	case Finalize:
		return "finalize"
	case FetchCatalog:
		return "fetch_catalog"
	case Reconcile:
		return "reconcile"
	default:
		return ""
	}
}

func recoverUpdate(reset int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Recover,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Recovered %d interrupted downloads", reset),
	}
}

func sweepUpdate(step, total int, item *models.Item) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Sweep,
		Step:    step,
		Total:   total,
		Key:     item.ResourceKey,
		Message: fmt.Sprintf("[%d/%d] Checking %s", step, total, item.Name),
	}
}

func batchUpdate(round, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Batch,
		Step:    round,
		Total:   size,
		Message: fmt.Sprintf("Starting %d downloads (batch %d)", size, round),
	}
}

func startTransferUpdate(step, total int, item *models.Item) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Transfer,
		Step:    step,
		Total:   total,
		Key:     item.ResourceKey,
		Message: fmt.Sprintf("Downloading %s...", item.Name),
		Data:    item,
	}
}

func transferProgressUpdate(step, total int, item *models.Item, done, size int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Transfer,
		Step:    step,
		Total:   total,
		Key:     item.ResourceKey,
		Message: fmt.Sprintf("Downloading... %d%% complete (%s/%s)", percent(done, size), humanize.Bytes(uint64(done)), humanize.Bytes(uint64(size))),
		Data:    item,
	}
}

func transferDoneUpdate(step, total int, item *models.Item, outcome Outcome, err error) ProgressUpdate {
	var msg string
	switch {
	case err != nil:
		msg = fmt.Sprintf("✗ %s (%s): %v", item.Name, outcome, err)
	case outcome == OutcomeSkipped:
		msg = fmt.Sprintf("- %s (skipped)", item.Name)
	default:
		msg = fmt.Sprintf("✓ %s", item.Name)
	}
	return ProgressUpdate{
		Phase:   Finalize,
		Step:    step,
		Total:   total,
		Key:     item.ResourceKey,
		Message: msg,
		Data:    outcome,
	}
}

func fetchCatalogUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchCatalog,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching catalog from %s...", name),
	}
}

func reconcileUpdate(step, total int, msg string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Reconcile,
		Step:    step,
		Total:   total,
		Message: msg,
	}
}

func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(done * 100 / total)
	return min(p, 100)
}
