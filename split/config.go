package split

import (
	"fmt"
	"strings"
)

// CollisionPolicy decides what happens when two rules in one run produce the
// same output name
type CollisionPolicy string

const (
	// CollisionOverwrite writes every rule to the shared name in rule order,
	// so the last rule's rows win. Every rule still gets a manifest record.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionSuffix renames later rules to name_2, name_3, ... in rule order
	CollisionSuffix CollisionPolicy = "suffix"
)

// ParseCollisionPolicy parses a policy name; empty means CollisionOverwrite
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", CollisionOverwrite:
		return CollisionOverwrite, nil
	case CollisionSuffix:
		return CollisionSuffix, nil
	default:
		return "", fmt.Errorf("unknown collision policy %q (must be one of: overwrite, suffix)", s)
	}
}

// Config holds orchestrator settings
type Config struct {
	// Workers bounds concurrent rule evaluations and writes; <= 0 means GOMAXPROCS
	Workers int
	// Collision defaults to CollisionOverwrite
	Collision CollisionPolicy
}

// DefaultConfig returns the default orchestrator settings
func DefaultConfig() Config {
	return Config{
		Collision: CollisionOverwrite,
	}
}
