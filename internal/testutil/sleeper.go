package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
)

// MockSleeperModule registers "test.Sleep", a node that passes its input
// through after sleeping, recording when each named instance ran. The sleep
// stops early when the run is cancelled.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Record returns the execution record of one instance, if it ran.
func (m *MockSleeperModule) Record(id string) (*ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ExecutionTimes[id]
	return r, ok
}

// Register registers the sleeper node type.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.Register(node.NewSchema("test", "Sleep").
		OptionalInput("value", porttype.Any).
		Output("value", porttype.Any).
		Constant("id", porttype.String, "").
		Compute(func(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
			id, err := c.String("id")
			if err != nil {
				return nil, err
			}

			startTime := time.Now()
			select {
			case <-time.After(m.sleepDuration):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			endTime := time.Now()

			m.mu.Lock()
			m.ExecutionTimes[id] = &ExecutionRecord{Start: startTime, End: endTime}
			m.mu.Unlock()

			if m.completionChan != nil {
				m.completionChan <- id
			}
			return node.Outputs{"value": in.Optional("value")}, nil
		}).
		MustBuild())
}
