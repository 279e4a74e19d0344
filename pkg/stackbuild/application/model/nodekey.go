package model

import (
	"fmt"
	"strings"
)

// NodeKey is the canonical identity of one build target, rendered as
// "service:version" or "service:version:platform".
type NodeKey struct {
	Service  ServiceID
	Version  Version
	Platform PlatformID
}

func (k NodeKey) String() string {
	if k.Platform == "" {
		return k.Service + ":" + k.Version
	}
	return k.Service + ":" + k.Version + ":" + k.Platform
}

func (k NodeKey) Less(other NodeKey) bool {
	return k.String() < other.String()
}

func ParseNodeKey(value string) (NodeKey, error) {
	parts := strings.Split(value, ":")
	for _, part := range parts {
		if part == "" {
			return NodeKey{}, fmt.Errorf("invalid node key %q", value)
		}
	}
	switch len(parts) {
	case 2:
		return NodeKey{Service: parts[0], Version: parts[1]}, nil
	case 3:
		return NodeKey{Service: parts[0], Version: parts[1], Platform: parts[2]}, nil
	default:
		return NodeKey{}, fmt.Errorf("invalid node key %q", value)
	}
}
