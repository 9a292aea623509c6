// Package fixture provides a minimal concrete implementation of the
// rhc package's collaborator interfaces ([rhc.SerializedSample],
// [rhc.KeyedInstance]), so cmd/rhcbench, cmd/rhcshell and the rhc
// package's tests can drive an RHC without a real DDS type-system or
// discovery stack behind them.
//
// Nothing here is part of the RHC's public contract; it exists purely
// to give the tools and tests a concrete, inspectable sample type.
package fixture

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/ddsgo/rhc/internal/core"
)

// Sample is a plain in-memory [core.SerializedSample]: a string key, a
// string payload, a source timestamp, and a status-info bitset. Ref
// counting is tracked but not enforced — there is no pooled storage to
// release, only a refs counter readable through [Sample.Refs].
type Sample struct {
	Key     string
	Payload string
	TS      time.Time
	HasTS   bool
	Status  core.StatusInfo
	Knd     core.SampleKind

	refs atomic.Int32
}

// NewDataSample builds a sample carrying a payload at ts.
func NewDataSample(key, payload string, ts time.Time) *Sample {
	return &Sample{Key: key, Payload: payload, TS: ts, HasTS: true, Knd: core.SampleKindData}
}

// NewKeySample builds a key-only sample (dispose/unregister) with no
// payload, carrying status as its DISPOSE/UNREGISTER bits.
func NewKeySample(key string, ts time.Time, status core.StatusInfo) *Sample {
	return &Sample{Key: key, TS: ts, HasTS: true, Status: status, Knd: core.SampleKindKey}
}

func (s *Sample) Timestamp() (time.Time, bool)    { return s.TS, s.HasTS }
func (s *Sample) Kind() core.SampleKind           { return s.Knd }
func (s *Sample) StatusInfoBits() core.StatusInfo { return s.Status }
func (s *Sample) Ref()                            { s.refs.Add(1) }
func (s *Sample) Unref()                          { s.refs.Add(-1) }

// Refs reports the current reference count, for diagnostics only.
func (s *Sample) Refs() int32 { return s.refs.Load() }

// KeyedInstance maps a string key to a stable numeric instance id using
// an FNV-1a hash, and carries the key-only projection the RHC stores
// for invalid-sample predicate evaluation.
type KeyedInstance struct {
	Key  string
	Proj *Sample
}

func (k KeyedInstance) IID() uint64 { return fnv1a(k.Key) }

func (k KeyedInstance) KeySample() core.SerializedSample { return k.Proj }

// NewKeyedInstance builds the KeyedInstance for key, with ts as the
// key-only projection's nominal timestamp.
func NewKeyedInstance(key string, ts time.Time) KeyedInstance {
	return KeyedInstance{Key: key, Proj: NewKeySample(key, ts, 0)}
}

func fnv1a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)

	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}

	return h
}

// PrefixPredicate builds a content-filter predicate that matches
// samples whose payload starts with prefix, used by the rhc package's
// query-condition tests. Key-only projections (which
// carry no payload) always match, so instance-level invalid-sample
// lookups are never spuriously excluded.
func PrefixPredicate(prefix string) func(core.SerializedSample) bool {
	return func(data core.SerializedSample) bool {
		s, ok := data.(*Sample)
		if !ok || s.Knd == core.SampleKindKey {
			return true
		}

		return strings.HasPrefix(s.Payload, prefix)
	}
}
