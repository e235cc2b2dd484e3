// Package crush implements deterministic, weighted placement (C12):
// mapping a record id to a placement group and a set of replica
// targets without consulting any central directory, the way Ceph's
// CRUSH algorithm places objects onto OSDs.
package crush

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Target is one placement candidate: a storage node/shard key, an
// optional relative weight (zero means the default weight of 1), and
// an optional failure-domain zone.
type Target struct {
	Key    string
	Weight float64
	Zone   string
}

// Map is the placement topology: how many placement groups to hash
// ids into, how many replicas to select per lookup, and the weighted
// target pool to select from.
type Map struct {
	PGs      uint32
	Replicas uint32
	Targets  []Target
}

// Placement is the result of locating one id.
type Placement struct {
	PG        uint32
	Primaries []string
}

func hashFor(parts ...string) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func hashFloat(h uint64) float64 {
	return float64(h) / float64(math.MaxUint64)
}

// Locate deterministically maps id to a placement group and up to
// Replicas distinct target keys. The placement group comes from a
// stable hash of id; replica selection walks a per-group deterministic
// permutation of targets, accepting each via weighted rejection
// sampling, and skips any target whose zone is already represented
// among the replicas chosen so far.
func Locate(id uint32, m Map) Placement {
	if m.PGs == 0 || len(m.Targets) == 0 {
		return Placement{}
	}

	idBytes := binary.LittleEndian.AppendUint32(nil, id)
	pg := uint32(xxhash.Sum64(idBytes) % uint64(m.PGs))
	pgKey := strconv.FormatUint(uint64(pg), 10)

	type scored struct {
		t Target
		h uint64
	}
	perm := make([]scored, len(m.Targets))
	maxWeight := 1.0
	for i, t := range m.Targets {
		perm[i] = scored{t: t, h: hashFor("order", pgKey, t.Key)}
		if t.Weight > maxWeight {
			maxWeight = t.Weight
		}
	}
	sort.Slice(perm, func(i, j int) bool {
		if perm[i].h != perm[j].h {
			return perm[i].h < perm[j].h
		}
		return perm[i].t.Key < perm[j].t.Key
	})

	usedZones := make(map[string]bool)
	primaries := make([]string, 0, m.Replicas)
	for _, sc := range perm {
		if uint32(len(primaries)) >= m.Replicas {
			break
		}
		w := sc.t.Weight
		if w <= 0 {
			w = 1
		}
		if hashFloat(hashFor("accept", pgKey, sc.t.Key)) >= w/maxWeight {
			continue
		}
		if sc.t.Zone != "" && usedZones[sc.t.Zone] {
			continue
		}
		primaries = append(primaries, sc.t.Key)
		if sc.t.Zone != "" {
			usedZones[sc.t.Zone] = true
		}
	}
	return Placement{PG: pg, Primaries: primaries}
}
