package eventbus

import (
	"strings"
	"sync"
	"time"

	"pixsync/internal/debounce"
	"pixsync/internal/protocol"
)

// RefreshKey is the fixed debounce key every refresh trigger funnels into.
const RefreshKey = "refreshTaskList"

const DefaultRefreshDelay = 500 * time.Millisecond

// RefreshParams are the query overrides a list view layers onto its own
// current filter and pagination state. TaskID is a hint only: within one
// debounce window the last caller's params win wholesale.
type RefreshParams struct {
	TaskID          string `json:"task_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	Action          string `json:"action,omitempty"`
	Page            int    `json:"page,omitempty"`
	Size            int    `json:"size,omitempty"`
	ForceRefresh    bool   `json:"force_refresh"`
	UseStoredParams bool   `json:"use_stored_params"`
}

// RefreshCoalescer turns many independent "the task list changed" signals
// (submit handlers, poll ticks, push events) into bounded-rate task.refresh
// events on the bus.
type RefreshCoalescer struct {
	bus *Bus
	reg *debounce.Registry

	mu      sync.Mutex
	pending RefreshParams
}

func NewRefreshCoalescer(bus *Bus, reg *debounce.Registry, delay time.Duration) *RefreshCoalescer {
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	rc := &RefreshCoalescer{bus: bus, reg: reg}
	reg.Register(RefreshKey, rc.fire, delay)
	return rc
}

// RequestRefresh records the merged parameter set (last write wins) and
// re-arms the shared debounce window.
func (rc *RefreshCoalescer) RequestRefresh(taskID string, params RefreshParams) {
	if rc == nil {
		return
	}
	merged := params
	merged.ForceRefresh = true
	merged.UseStoredParams = false
	if id := strings.TrimSpace(taskID); id != "" {
		merged.TaskID = id
	}

	rc.mu.Lock()
	rc.pending = merged
	rc.mu.Unlock()

	rc.reg.Trigger(RefreshKey)
}

// Close unregisters the debounce entry. A window already in flight still
// fires once; consumers treat a late refresh as a harmless extra re-query.
func (rc *RefreshCoalescer) Close() {
	if rc == nil {
		return
	}
	rc.reg.Clear(RefreshKey)
}

func (rc *RefreshCoalescer) fire() {
	rc.mu.Lock()
	params := rc.pending
	rc.mu.Unlock()
	rc.bus.Publish(protocol.NewEvent(protocol.OpTaskRefresh, params))
}
