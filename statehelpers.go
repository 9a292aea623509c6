package rhc

import (
	"github.com/ddsgo/rhc/internal/core"
	"github.com/ddsgo/rhc/internal/instance"
	"github.com/ddsgo/rhc/internal/sample"
)

// instanceLevelQminv strips the sample-state bits out of a full
// qminv, leaving only the view/instance rejection bits — used to test
// "does this instance qualify at all" before walking its samples
// (§4.4 step 1, §4.5's plain-read-condition instance-level test).
func instanceLevelQminv(qminv core.StateMask) core.StateMask {
	return qminv &^ (core.SampleStateRead | core.SampleStateNotRead)
}

// sampleStateTriple computes the one-hot sample/view/instance state
// mask for a stored sample.
func sampleStateTriple(inst *instance.Instance, s *sample.Sample) core.StateMask {
	m := inst.StateMask()

	if s.IsRead {
		m |= core.SampleStateRead
	} else {
		m |= core.SampleStateNotRead
	}

	return m
}

// invalidStateTriple computes the one-hot state mask for an
// instance's synthesized invalid sample.
func invalidStateTriple(inst *instance.Instance) core.StateMask {
	m := inst.StateMask()

	if inst.InvIsRead {
		m |= core.SampleStateRead
	} else {
		m |= core.SampleStateNotRead
	}

	return m
}

// instanceReadStates reduces inst's samples (including the synthesized
// invalid one, if any) to the has_read/has_not_read pair Cyclone DDS's
// update_conditions_locked uses to test a plain read condition's
// per-instance contribution (dds_rhc_default.c); the sample walk stops
// as soon as both states have been seen.
func instanceReadStates(inst *instance.Instance) (hasRead, hasNotRead bool) {
	inst.Samples.Each(func(_, s *sample.Sample) bool {
		if s.IsRead {
			hasRead = true
		} else {
			hasNotRead = true
		}

		return !(hasRead && hasNotRead)
	})

	if inst.InvExists {
		if inst.InvIsRead {
			hasRead = true
		} else {
			hasNotRead = true
		}
	}

	return hasRead, hasNotRead
}
