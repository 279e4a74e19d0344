package model

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed or missing manifest document
// or required field.
type ConfigurationError struct {
	Service  ServiceID
	Version  Version
	Platform PlatformID
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	subject := NodeKey{Service: e.Service, Version: e.Version, Platform: e.Platform}.String()
	subject = strings.TrimSuffix(subject, ":")
	if e.Field != "" {
		return fmt.Sprintf("configuration of %v: field %q: %v", subject, e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration of %v: %v", subject, e.Reason)
}

// ResolutionError reports a dependency whose version or platform can
// not be determined.
type ResolutionError struct {
	Service    ServiceID
	Version    Version
	Platform   PlatformID
	Dependency string
	Missing    string
	Reason     string
}

func (e *ResolutionError) Error() string {
	parent := NodeKey{Service: e.Service, Version: e.Version, Platform: e.Platform}.String()
	parent = strings.TrimSuffix(parent, ":")
	if e.Missing != "" {
		return fmt.Sprintf("can not resolve dependency %q of %v: missing %v: %v",
			e.Dependency, parent, e.Missing, e.Reason)
	}
	return fmt.Sprintf("can not resolve dependency %q of %v: %v", e.Dependency, parent, e.Reason)
}

// CycleError aggregates every circular dependency found in one pass.
type CycleError struct {
	Cycles [][]NodeKey
}

func (e *CycleError) Error() string {
	paths := make([]string, 0, len(e.Cycles))
	for _, cycle := range e.Cycles {
		keys := make([]string, 0, len(cycle))
		for _, key := range cycle {
			keys = append(keys, key.String())
		}
		paths = append(paths, strings.Join(keys, " -> "))
	}
	if len(paths) == 1 {
		return "dependency cycle: " + paths[0]
	}
	return fmt.Sprintf("%d dependency cycles: %v", len(paths), strings.Join(paths, "; "))
}

// CollisionError aggregates every duplicate version name, tag or
// (version, platform) composite found during validation.
type CollisionError struct {
	Service  ServiceID
	Platform PlatformID
	Kind     string
	Value    string
	Versions []Version
}

func (e *CollisionError) Error() string {
	subject := e.Service
	if e.Platform != "" {
		subject = subject + " on platform " + e.Platform
	}
	return fmt.Sprintf("%v collision in %v: %q produced by versions %v",
		e.Kind, subject, e.Value, strings.Join(e.Versions, ", "))
}

// CacheError reports an unreadable dep-cache manifest or a missing
// image tarball.
type CacheError struct {
	Owner  ServiceID
	Path   string
	Reason string
	Err    error
}

func (e *CacheError) Error() string {
	msg := fmt.Sprintf("dep-cache of %v: %v", e.Owner, e.Reason)
	if e.Path != "" {
		msg = msg + " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
