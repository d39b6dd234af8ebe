package pipelines

import (
	"sync"

	"markd/configs"
	"markd/internal/store"
	"markd/tasks"
)

// State holds shared state between pipeline steps. Common dependencies are
// defined here, pipeline-specific data goes in the Data map. State is safe
// for concurrent access via Get/Set methods.
type State struct {
	// Config holds common environment configuration
	Config *configs.Env

	// Store is the shared on-disk state layer
	Store *store.Store

	// Client is the shared marking-system API client
	Client *tasks.TrueAPIClient

	// Signer produces detached signatures for auth challenges
	Signer tasks.Signer

	// mu protects Data from concurrent access
	mu sync.RWMutex

	// Data holds pipeline-specific state set by individual pipelines
	Data map[string]interface{}
}

// NewState creates a new pipeline state with initialized dependencies
func NewState(cfg *configs.Env) *State {
	return &State{
		Config: cfg,
		Store:  store.New(cfg.DataDir),
		Client: tasks.NewTrueAPIClient(cfg.TrueAPIBaseURL),
		Signer: &tasks.CryptCPSigner{Path: cfg.CryptCPPath},
		Data:   make(map[string]interface{}),
	}
}

// Set stores a value in the pipeline state (thread-safe)
func (s *State) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data[key] = value
}

// Get retrieves a value from the pipeline state (thread-safe)
func (s *State) Get(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Data[key]
}

// GetString retrieves a string value from the pipeline state (thread-safe)
func (s *State) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.Data[key].(string); ok {
		return v
	}
	return ""
}
