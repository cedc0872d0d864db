package reconcile

import (
	"slices"

	"github.com/duobook/duobook-go/internal/model"
)

// TombstonePlan is the outcome of comparing tombstone sets. It performs no I/O.
type TombstonePlan struct {
	// Push holds ids tombstoned locally but not remotely.
	Push []string
	// Pull holds ids tombstoned remotely but not locally.
	Pull []string
	// Acknowledge holds locally pending ids the server already has.
	Acknowledge []string
}

// PlanTombstones compares local tombstones with the remote tombstone ids.
func PlanTombstones(local []model.Tombstone, remote []string) TombstonePlan {
	remoteSet := toSet(remote)
	localSet := make(map[string]struct{}, len(local))

	var plan TombstonePlan
	for _, t := range local {
		localSet[t.BookID] = struct{}{}
		_, onRemote := remoteSet[t.BookID]
		switch {
		case !onRemote:
			plan.Push = append(plan.Push, t.BookID)
		case t.Pending:
			plan.Acknowledge = append(plan.Acknowledge, t.BookID)
		}
	}
	for id := range remoteSet {
		if _, ok := localSet[id]; !ok {
			plan.Pull = append(plan.Pull, id)
		}
	}

	slices.Sort(plan.Push)
	slices.Sort(plan.Pull)
	slices.Sort(plan.Acknowledge)
	return plan
}

// TransferPlan lists ids to send to and fetch from the server.
type TransferPlan struct {
	Push []string
	Pull []string
}

// PlanTransfers applies last-write-wins to two id->lastModified maps. An id
// present on one side only moves to the other side. Equal stamps mean no
// action. Ids in dead are ignored on both sides.
func PlanTransfers(local, remote map[string]int64, dead map[string]struct{}) TransferPlan {
	var plan TransferPlan
	for id, l := range local {
		if _, ok := dead[id]; ok {
			continue
		}
		if r, ok := remote[id]; !ok || l > r {
			plan.Push = append(plan.Push, id)
		}
	}
	for id, r := range remote {
		if _, ok := dead[id]; ok {
			continue
		}
		if l, ok := local[id]; !ok || r > l {
			plan.Pull = append(plan.Pull, id)
		}
	}

	slices.Sort(plan.Push)
	slices.Sort(plan.Pull)
	return plan
}

// Empty reports whether the plan moves nothing.
func (p TransferPlan) Empty() bool {
	return len(p.Push) == 0 && len(p.Pull) == 0
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func bookStamps(books []model.Book) map[string]int64 {
	m := make(map[string]int64, len(books))
	for _, b := range books {
		m[b.ID] = b.LastModified
	}
	return m
}

func summaryStamps(books []model.BookSummary) map[string]int64 {
	m := make(map[string]int64, len(books))
	for _, b := range books {
		m[b.ID] = b.LastModified
	}
	return m
}

func locationStamps(locs []model.ReadingLocation) map[string]int64 {
	m := make(map[string]int64, len(locs))
	for _, l := range locs {
		m[l.BookID] = l.LastModified
	}
	return m
}
