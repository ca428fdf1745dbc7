package calculator

import (
	"container/heap"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// DriftRanking is a max-heap of drift records keyed by DriftMinutes.
// Ties are broken by parent height, then by hashes, so draining is
// deterministic for a given set of records.
type DriftRanking []types.DriftRecord

func (r DriftRanking) Len() int { return len(r) }

func (r DriftRanking) Less(i, j int) bool {
	return driftBefore(r[i], r[j])
}

func (r DriftRanking) Swap(i, j int) { r[i], r[j] = r[j], r[i] }

func (r *DriftRanking) Push(x any) {
	*r = append(*r, x.(types.DriftRecord))
}

func (r *DriftRanking) Pop() any {
	old := *r
	n := len(old)
	record := old[n-1]
	*r = old[:n-1]
	return record
}

// Drain pops records while they are at or above thresholdMinutes and
// returns them in descending order. Each pop yields the largest remaining
// record, so the first one below the threshold proves no later pop can
// reach it and draining stops there.
func (r *DriftRanking) Drain(thresholdMinutes int64) []types.DriftRecord {
	var ranked []types.DriftRecord
	for r.Len() > 0 {
		record := heap.Pop(r).(types.DriftRecord)
		if record.DriftMinutes < thresholdMinutes {
			break
		}
		ranked = append(ranked, record)
	}
	return ranked
}

// RankDrifts returns the records with DriftMinutes >= thresholdMinutes in
// descending order. records is not modified.
func RankDrifts(records []types.DriftRecord, thresholdMinutes int64) []types.DriftRecord {
	ranking := make(DriftRanking, len(records))
	copy(ranking, records)
	heap.Init(&ranking)
	return ranking.Drain(thresholdMinutes)
}

// driftBefore orders a ahead of b in the ranking
func driftBefore(a, b types.DriftRecord) bool {
	if a.DriftMinutes != b.DriftMinutes {
		return a.DriftMinutes > b.DriftMinutes
	}
	if a.ParentHeight != b.ParentHeight {
		return a.ParentHeight < b.ParentHeight
	}
	if a.ParentHash != b.ParentHash {
		return a.ParentHash < b.ParentHash
	}
	return a.ChildHash < b.ChildHash
}
