package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewMemoryStores builds an in-memory StoreSet for tests and ephemeral
// runs.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Settings:     NewMemorySettingsStore(),
		ToolFailures: NewMemoryToolFailureStore(),
		Actions:      NewMemoryActionLogStore(),
	}
}

// MemorySettingsStore provides an in-memory SettingsStore.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string // user ID -> key -> value
}

// NewMemorySettingsStore creates an in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{values: make(map[string]map[string]string)}
}

func (s *MemorySettingsStore) Get(ctx context.Context, userID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[userID][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemorySettingsStore) Set(ctx context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return fmt.Errorf("user id and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[userID] == nil {
		s.values[userID] = make(map[string]string)
	}
	s.values[userID][key] = value
	return nil
}

func (s *MemorySettingsStore) Delete(ctx context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[userID][key]; !ok {
		return ErrNotFound
	}
	delete(s.values[userID], key)
	return nil
}

func (s *MemorySettingsStore) List(ctx context.Context, userID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values[userID]))
	for k, v := range s.values[userID] {
		out[k] = v
	}
	return out, nil
}

// MemoryToolFailureStore provides an in-memory ToolFailureStore.
type MemoryToolFailureStore struct {
	mu       sync.Mutex
	failures map[string]*ToolFailure
}

// NewMemoryToolFailureStore creates an in-memory tool failure store.
func NewMemoryToolFailureStore() *MemoryToolFailureStore {
	return &MemoryToolFailureStore{failures: make(map[string]*ToolFailure)}
}

func (s *MemoryToolFailureStore) RecordFailure(ctx context.Context, toolName, reason string) (int, error) {
	if toolName == "" {
		return 0, fmt.Errorf("tool name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.failures[toolName]
	if f == nil {
		f = &ToolFailure{ToolName: toolName}
		s.failures[toolName] = f
	}
	f.Count++
	f.LastReason = reason
	f.LastFailureAt = time.Now().UTC()
	return f.Count, nil
}

func (s *MemoryToolFailureStore) ResetFailures(ctx context.Context, toolName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, toolName)
	return nil
}

func (s *MemoryToolFailureStore) FailureCount(ctx context.Context, toolName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.failures[toolName]
	if f == nil {
		return 0, nil
	}
	return f.Count, nil
}

func (s *MemoryToolFailureStore) ListExceeding(ctx context.Context, threshold int) ([]ToolFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ToolFailure
	for _, f := range s.failures {
		if f.Count >= threshold {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out, nil
}

// MemoryActionLogStore provides an in-memory ActionLogStore.
type MemoryActionLogStore struct {
	mu      sync.Mutex
	actions map[string][]*JobAction // job ID -> ordered actions
}

// NewMemoryActionLogStore creates an in-memory action log.
func NewMemoryActionLogStore() *MemoryActionLogStore {
	return &MemoryActionLogStore{actions: make(map[string][]*JobAction)}
}

func (s *MemoryActionLogStore) RecordAction(ctx context.Context, action *JobAction) error {
	if action == nil || action.JobID == "" {
		return fmt.Errorf("action with job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	action.SequenceNum = int64(len(s.actions[action.JobID])) + 1
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	s.actions[action.JobID] = append(s.actions[action.JobID], action)
	return nil
}

func (s *MemoryActionLogStore) ListActions(ctx context.Context, jobID string, limit int) ([]*JobAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := s.actions[jobID]
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	out := make([]*JobAction, len(actions))
	copy(out, actions)
	return out, nil
}
