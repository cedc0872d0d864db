package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duobook/duobook-go/internal/model"
)

func TestPlanTombstones(t *testing.T) {
	local := []model.Tombstone{
		{BookID: "only-local", Pending: true},
		{BookID: "both-pending", Pending: true},
		{BookID: "both-acked"},
	}
	remote := []string{"both-pending", "both-acked", "only-remote-b", "only-remote-a"}

	plan := PlanTombstones(local, remote)

	assert.Equal(t, []string{"only-local"}, plan.Push)
	assert.Equal(t, []string{"only-remote-a", "only-remote-b"}, plan.Pull)
	assert.Equal(t, []string{"both-pending"}, plan.Acknowledge)
}

func TestPlanTombstones_Empty(t *testing.T) {
	plan := PlanTombstones(nil, nil)
	assert.Empty(t, plan.Push)
	assert.Empty(t, plan.Pull)
	assert.Empty(t, plan.Acknowledge)
}

func TestPlanTransfers(t *testing.T) {
	tests := []struct {
		name     string
		local    map[string]int64
		remote   map[string]int64
		dead     map[string]struct{}
		wantPush []string
		wantPull []string
	}{
		{
			name:     "local only is pushed",
			local:    map[string]int64{"a": 1},
			wantPush: []string{"a"},
		},
		{
			name:     "remote only is pulled",
			remote:   map[string]int64{"a": 1},
			wantPull: []string{"a"},
		},
		{
			name:     "newer local is pushed",
			local:    map[string]int64{"a": 200},
			remote:   map[string]int64{"a": 100},
			wantPush: []string{"a"},
		},
		{
			name:     "newer remote is pulled",
			local:    map[string]int64{"a": 100},
			remote:   map[string]int64{"a": 200},
			wantPull: []string{"a"},
		},
		{
			name:   "equal stamps do nothing",
			local:  map[string]int64{"a": 100},
			remote: map[string]int64{"a": 100},
		},
		{
			name:   "dead ids are ignored on both sides",
			local:  map[string]int64{"a": 300, "b": 1},
			remote: map[string]int64{"a": 100, "c": 5},
			dead:   map[string]struct{}{"a": {}, "b": {}, "c": {}},
		},
		{
			name:     "results are sorted",
			local:    map[string]int64{"z": 1, "m": 1, "a": 1},
			remote:   map[string]int64{"y": 1, "b": 1},
			wantPush: []string{"a", "m", "z"},
			wantPull: []string{"b", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanTransfers(tt.local, tt.remote, tt.dead)
			assert.Equal(t, tt.wantPush, plan.Push)
			assert.Equal(t, tt.wantPull, plan.Pull)
			assert.Equal(t, len(tt.wantPush)+len(tt.wantPull) == 0, plan.Empty())
		})
	}
}

func TestStats_RemoteWrites(t *testing.T) {
	assert.Equal(t, 0, Stats{BooksPulled: 3, LocationsPulled: 2}.RemoteWrites())
	assert.Equal(t, 4, Stats{DeletionsPushed: 1, BooksPushed: 2, LocationsPushed: 7}.RemoteWrites())
}
