package checklist

import (
	"encoding/json"
	"fmt"

	"github.com/starford/staykeep/internal/kvstore"
)

const activeKeyPrefix = "activeInspection:"

// ActiveStore persists one in-progress instance per template in durable
// client storage.
type ActiveStore struct {
	kv kvstore.Store
}

// NewActiveStore wraps kv.
func NewActiveStore(kv kvstore.Store) *ActiveStore {
	return &ActiveStore{kv: kv}
}

func activeKey(templateID string) string { return activeKeyPrefix + templateID }

// Load returns the instance for templateID, or false when none is stored.
func (s *ActiveStore) Load(templateID string) (Instance, bool, error) {
	raw, ok := s.kv.Get(activeKey(templateID))
	if !ok || raw == "" {
		return Instance{}, false, nil
	}
	var in Instance
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return Instance{}, false, fmt.Errorf("checklist: decode active %s: %w", templateID, err)
	}
	return in, true, nil
}

// Save stores in under its template id.
func (s *ActiveStore) Save(in Instance) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("checklist: encode active: %w", err)
	}
	return s.kv.Set(activeKey(in.TemplateID), string(raw))
}

// Clear drops the instance for templateID.
func (s *ActiveStore) Clear(templateID string) error {
	return s.kv.Remove(activeKey(templateID))
}
