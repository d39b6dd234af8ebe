package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"markd/types"
)

// LoadTokens reads the token store. A missing file yields an empty store,
// not an error.
func (s *Store) LoadTokens() (*types.TokenStore, error) {
	ts := &types.TokenStore{Tokens: map[string]string{}}
	err := readJSON(s.path(tokensFile), ts)
	if errors.Is(err, os.ErrNotExist) {
		return ts, nil
	}
	if err != nil {
		return nil, err
	}
	if ts.Tokens == nil {
		ts.Tokens = map[string]string{}
	}
	return ts, nil
}

// MergeTokens folds newly acquired tokens into the store: same-key entries
// are overwritten, all other existing entries are preserved, and the shared
// generated_at timestamp is advanced to now.
func (s *Store) MergeTokens(acquired map[string]string, now time.Time) error {
	if len(acquired) == 0 {
		return fmt.Errorf("no tokens to merge")
	}
	ts, err := s.LoadTokens()
	if err != nil {
		return err
	}
	for key, token := range acquired {
		ts.Tokens[key] = token
	}
	ts.GeneratedAt = now
	return writeJSONAtomic(s.path(tokensFile), ts)
}
