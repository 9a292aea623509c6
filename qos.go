package rhc

import (
	"encoding/json"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// HistoryKind selects between KEEP_LAST and KEEP_ALL history (§4.3
// Step E).
type HistoryKind int

const (
	// KeepLast retains at most Depth samples per instance, overwriting
	// the oldest on arrival.
	KeepLast HistoryKind = iota
	// KeepAll retains every sample up to the resource limits.
	KeepAll
)

// OwnershipKind selects SHARED (no arbitration) or EXCLUSIVE (strength
// arbitration, §4.3 Step C) ownership.
type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

// History configures per-instance sample retention (§3.1, §4.3 Step E).
type History struct {
	Kind  HistoryKind `json:"kind" yaml:"kind"`
	Depth int         `json:"depth" yaml:"depth"` // meaningful only for KeepLast
}

// ResourceLimits bound total and per-instance sample counts, and the
// total instance count, under KeepAll history (§4.3 Step E, §7
// "Resource" errors). Zero means unlimited.
type ResourceLimits struct {
	MaxSamples            int `json:"max_samples" yaml:"max_samples"`
	MaxSamplesPerInstance int `json:"max_samples_per_instance" yaml:"max_samples_per_instance"`
	MaxInstances          int `json:"max_instances" yaml:"max_instances"`
}

// unlimited reports whether a limit value means "no limit".
func unlimited(n int) bool { return n <= 0 }

// TimeBasedFilter enforces a minimum interval between accepted samples
// on an instance (§4.3 Step C).
type TimeBasedFilter struct {
	MinimumSeparation time.Duration `json:"minimum_separation" yaml:"minimum_separation"`
}

// Deadline configures the per-instance liveness check (§4.6). Zero
// Period disables deadline tracking.
type Deadline struct {
	Period time.Duration `json:"period" yaml:"period"`
}

// QoS is the policy set passed to [New] and [RHC.SetQoS] (§6.2
// "set_qos"). Ownership and UseSourceTimestampOrdering are taken only
// from the QoS given to New; SetQoS keeps those two values unchanged.
type QoS struct {
	History             History         `json:"history" yaml:"history"`
	ResourceLimits      ResourceLimits  `json:"resource_limits" yaml:"resource_limits"`
	TimeBasedFilter     TimeBasedFilter `json:"time_based_filter" yaml:"time_based_filter"`
	Deadline            Deadline        `json:"deadline" yaml:"deadline"`
	Ownership           OwnershipKind   `json:"ownership" yaml:"ownership"`
	UseSourceTimestampOrdering bool     `json:"use_source_timestamp_ordering" yaml:"use_source_timestamp_ordering"`
}

// DefaultQoS matches the DDS spec defaults relevant to an RHC: KEEP_LAST
// depth 1, SHARED ownership, no filters, no deadline, with
// by-source-timestamp ordering enabled (§4.3 Step C).
func DefaultQoS() QoS {
	return QoS{
		History:                    History{Kind: KeepLast, Depth: 1},
		Ownership:                  Shared,
		UseSourceTimestampOrdering: true,
	}
}

// ParseQoSHuJSON decodes a QoS from JWCC (JSON-with-comments and
// trailing commas) data, for hand-edited scenario fixtures.
func ParseQoSHuJSON(data []byte) (QoS, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return QoS{}, wrapErr(err)
	}

	q := DefaultQoS()
	if err := json.Unmarshal(std, &q); err != nil {
		return QoS{}, wrapErr(err)
	}

	return q, nil
}

// ParseQoSYAML decodes a QoS from a YAML document, for scenario files
// shared with non-Go tooling.
func ParseQoSYAML(data []byte) (QoS, error) {
	q := DefaultQoS()
	if err := yaml.Unmarshal(data, &q); err != nil {
		return QoS{}, wrapErr(err)
	}

	return q, nil
}
