package cds

import (
	"strings"
	"sync"

	commonv3 "skywalking.apache.org/repo/goapi/collect/common/v3"
)

const (
	// CommandName is the collector command carrying dynamic configuration.
	CommandName = "ConfigurationDiscoveryCommand"
	// KeyIgnoreSuffix lists operation-name suffixes whose segments are not
	// reported.
	KeyIgnoreSuffix = "ignore_suffix"

	argUUID         = "UUID"
	argSerialNumber = "SerialNumber"
)

// Store holds the latest configuration received from the collector.
type Store struct {
	mu           sync.RWMutex
	uuid         string
	values       map[string]string
	ignoreSuffix []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Apply updates the store from a FetchConfigurations response and reports
// whether anything changed. Each discovery command carries the complete
// configuration, so keys it omits are removed. A command whose UUID matches
// the current one is ignored.
func (s *Store) Apply(cmds *commonv3.Commands) bool {
	changed := false
	for _, cmd := range cmds.GetCommands() {
		if cmd.GetCommand() != CommandName {
			continue
		}

		uuid := ""
		values := make(map[string]string, len(cmd.GetArgs()))
		for _, kv := range cmd.GetArgs() {
			switch kv.GetKey() {
			case argUUID:
				uuid = kv.GetValue()
			case argSerialNumber:
			default:
				values[kv.GetKey()] = kv.GetValue()
			}
		}

		s.mu.Lock()
		if uuid != "" && uuid == s.uuid {
			s.mu.Unlock()
			continue
		}
		s.uuid = uuid
		s.values = values
		s.ignoreSuffix = splitList(values[KeyIgnoreSuffix])
		s.mu.Unlock()
		changed = true
	}
	return changed
}

// UUID returns the identifier of the applied configuration, "" before any.
func (s *Store) UUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uuid
}

// Get returns a raw configuration value.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// IgnoreSuffixes returns the dynamic ignore_suffix list.
func (s *Store) IgnoreSuffixes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ignoreSuffix...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
