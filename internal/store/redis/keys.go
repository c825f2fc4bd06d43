package redis

import "strings"

const (
	// DefaultPrefix namespaces every key written by ipwatch
	DefaultPrefix = "ipwatch"

	keyCurrent     = "current"
	keyTransitions = "transitions"
	channelChanges = "changes"
)

// Keys builds the Redis key names for one prefix.
type Keys struct {
	prefix string
}

// NewKeys returns the key set for prefix, falling back to DefaultPrefix.
func NewKeys(prefix string) Keys {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{prefix: prefix}
}

// Current is the hash holding the latest value and its timestamps
func (k Keys) Current() string { return k.prefix + ":" + keyCurrent }

// Transitions is the capped list of change events, newest at the head
func (k Keys) Transitions() string { return k.prefix + ":" + keyTransitions }

// Changes is the pub/sub channel change events are published on
func (k Keys) Changes() string { return k.prefix + ":" + channelChanges }
