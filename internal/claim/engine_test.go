package claim

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominioncraft/dominion/internal/config"
	"github.com/dominioncraft/dominion/internal/event"
	"github.com/dominioncraft/dominion/internal/model"
	"github.com/dominioncraft/dominion/internal/territory"
)

var testWorld = uuid.MustParse("11111111-2222-3333-4444-555555555555")

func chunkAt(x, z int32) ChunkKey {
	return ChunkKey{WorldID: testWorld, X: x, Z: z}
}

type fakeBiomes struct {
	biomes map[ChunkKey]string
}

func (f *fakeBiomes) Biome(key ChunkKey) string {
	return f.biomes[key]
}

func testConfig() config.Engine {
	cfg := config.Default()
	cfg.Claims.BufferZoneChunks = 2
	cfg.UpgradeTiers = []config.UpgradeTier{
		{Level: 0, MaxChunks: 4, ClaimCost: 5},
		{Level: 1, MaxChunks: -1, ClaimCost: 5, AllowedBiomes: []string{"plains"}},
	}
	return cfg
}

func newTestEngine(cfg config.Engine, biomes BiomeProvider) (*Engine, *event.Bus) {
	bus := event.NewBus()
	rnd := rand.New(rand.NewPCG(1, 2))
	return NewEngine(config.NewSnapshot(cfg), biomes, bus, rnd), bus
}

func newTestTown(id string, balance float64) *territory.Territory {
	t := territory.New(id, territory.KindTown, "town_"+id, uuid.New())
	t.SetBalance(balance)
	return t
}

func TestEngine_ClaimDeductsCost(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 100)

	d := e.Claim(town, nil, chunkAt(0, 0), false)
	require.Equal(t, DenialNone, d)

	assert.Equal(t, "T000001", e.OwnerOf(chunkAt(0, 0)))
	assert.Equal(t, 1, e.ClaimCount("T000001"))
	assert.Equal(t, 95.0, town.Balance())
}

func TestEngine_ClaimDenials(t *testing.T) {
	cfg := testConfig()
	biomes := &fakeBiomes{biomes: map[ChunkKey]string{
		chunkAt(0, 0): "plains",
		chunkAt(1, 0): "ocean",
	}}
	e, _ := newTestEngine(cfg, biomes)

	t.Run("blacklisted", func(t *testing.T) {
		town := newTestTown("T000010", 100)
		e.Blacklist(chunkAt(9, 9))
		assert.Equal(t, DenialBlacklisted, e.CanClaim(town, nil, chunkAt(9, 9), true))
		e.Unblacklist(chunkAt(9, 9))
		assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(9, 9), true))
	})

	t.Run("no permission", func(t *testing.T) {
		town := newTestTown("T000011", 100)
		outsider := model.NewPlayer(uuid.New(), "outsider")
		assert.Equal(t, DenialNoPermission, e.CanClaim(town, outsider, chunkAt(8, 8), true))
	})

	t.Run("biome", func(t *testing.T) {
		town := newTestTown("T000012", 100)
		town.RaiseClaimTier() // tier 1 allows plains only
		assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(0, 0), true))
		assert.Equal(t, DenialBiome, e.CanClaim(town, nil, chunkAt(1, 0), true))
	})

	t.Run("funds", func(t *testing.T) {
		town := newTestTown("T000013", 3)
		assert.Equal(t, DenialFunds, e.CanClaim(town, nil, chunkAt(7, 7), true))
	})
}

func TestEngine_ClaimCapacity(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)

	// Tier 0 caps at 4 chunks.
	for i := int32(0); i < 4; i++ {
		require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(i, 0), true))
	}
	assert.Equal(t, DenialCapacity, e.CanClaim(town, nil, chunkAt(4, 0), true))

	// The next tier is unlimited.
	town.RaiseClaimTier()
	assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(4, 0), true))
}

func TestEngine_ClaimAdjacency(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)

	require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(0, 0), false))

	// Claimed chunks cannot be claimed again.
	assert.Equal(t, DenialClaimed, e.CanClaim(town, nil, chunkAt(0, 0), false))

	// Diagonal is not 4-adjacent.
	assert.Equal(t, DenialAdjacency, e.CanClaim(town, nil, chunkAt(1, 1), false))
	assert.Equal(t, DenialAdjacency, e.CanClaim(town, nil, chunkAt(5, 5), false))

	// The four edge neighbours are fine.
	assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(1, 0), false))
	assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(-1, 0), false))
	assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(0, 1), false))
	assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(0, -1), false))

	// ignoreAdjacent bypasses the adjacency rule.
	assert.Equal(t, DenialNone, e.CanClaim(town, nil, chunkAt(5, 5), true))
}

func TestEngine_ClaimBufferZone(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	occupant := newTestTown("T000001", 1000)
	require.Equal(t, DenialNone, e.Claim(occupant, nil, chunkAt(0, 0), false))

	newcomer := newTestTown("T000002", 1000)

	// First claim within the 2-chunk Chebyshev radius of a foreign
	// territory is refused.
	assert.Equal(t, DenialBufferZone, e.CanClaim(newcomer, nil, chunkAt(2, 2), false))
	assert.Equal(t, DenialBufferZone, e.CanClaim(newcomer, nil, chunkAt(0, 2), false))

	// Outside the radius is fine.
	require.Equal(t, DenialNone, e.Claim(newcomer, nil, chunkAt(3, 0), false))

	// With chunks of its own, the buffer rule no longer applies; the
	// adjacency rule takes over.
	assert.Equal(t, DenialNone, e.CanClaim(newcomer, nil, chunkAt(2, 0), false))

	// The occupant's own chunks never trigger its buffer check.
	assert.Equal(t, DenialNone, e.CanClaim(occupant, nil, chunkAt(1, 0), false))
}

func TestEngine_Unclaim(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)
	require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(0, 0), false))

	assert.True(t, e.Unclaim(chunkAt(0, 0)))
	assert.False(t, e.Unclaim(chunkAt(0, 0)))
	assert.Equal(t, "", e.OwnerOf(chunkAt(0, 0)))
	assert.Equal(t, 0, e.ClaimCount("T000001"))
}

func TestEngine_UnclaimAll(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)
	for i := int32(0); i < 3; i++ {
		require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(i, 0), true))
	}

	assert.Equal(t, 3, e.UnclaimAll("T000001"))
	assert.Equal(t, 0, e.ClaimCount("T000001"))
	assert.Equal(t, 0, e.UnclaimAll("T000001"))
}

func TestEngine_Policy(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)
	key := chunkAt(0, 0)
	require.Equal(t, DenialNone, e.Claim(town, nil, key, false))

	_, ok := e.PolicyOf(key)
	require.True(t, ok)

	p := Policy{PvPEnabled: true}
	p = p.WithRule(territory.PermUseContainer, AccessEveryone)
	require.True(t, e.SetPolicy(key, p))

	got, ok := e.PolicyOf(key)
	require.True(t, ok)
	assert.True(t, got.PvPEnabled)
	assert.Equal(t, AccessEveryone, got.AccessFor(territory.PermUseContainer))

	assert.False(t, e.SetPolicy(chunkAt(9, 9), p))
	_, ok = e.PolicyOf(chunkAt(9, 9))
	assert.False(t, ok)
}

func TestEngine_Conquer(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	owner := newTestTown("T000001", 1000)
	attacker := newTestTown("T000002", 1000)
	key := chunkAt(0, 0)
	require.Equal(t, DenialNone, e.Claim(owner, nil, key, false))

	// Without a conquest credit nothing happens.
	assert.False(t, e.CanConquer(attacker, key))
	assert.False(t, e.Conquer(attacker, key))
	assert.Equal(t, "T000001", e.OwnerOf(key))

	attacker.AddEnemyClaims("T000001", 1)
	assert.True(t, e.CanConquer(attacker, key))
	assert.True(t, e.Conquer(attacker, key))
	assert.Equal(t, "T000002", e.OwnerOf(key))
	assert.Equal(t, int32(0), attacker.EnemyClaims("T000001"))

	// The single credit is spent.
	require.Equal(t, DenialNone, e.Claim(owner, nil, chunkAt(5, 5), true))
	assert.False(t, e.Conquer(attacker, chunkAt(5, 5)))

	// Unclaimed or own chunks are not conquerable.
	assert.False(t, e.CanConquer(attacker, chunkAt(9, 9)))
	assert.False(t, e.Conquer(attacker, key))
}

func TestEngine_OwnerChangeEvents(t *testing.T) {
	e, bus := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)
	attacker := newTestTown("T000002", 1000)

	var events []event.ChunkOwnerChanged
	event.Subscribe(bus, func(ev event.ChunkOwnerChanged) {
		events = append(events, ev)
	})

	key := chunkAt(0, 0)
	require.Equal(t, DenialNone, e.Claim(town, nil, key, false))
	require.Len(t, events, 1)
	assert.Equal(t, event.ChunkOwnerChanged{WorldID: testWorld, X: 0, Z: 0, OwnerID: "T000001"}, events[0])

	// Denied claims publish nothing.
	require.Equal(t, DenialClaimed, e.Claim(attacker, nil, key, false))
	assert.Len(t, events, 1)

	attacker.AddEnemyClaims("T000001", 1)
	require.True(t, e.Conquer(attacker, key))
	require.Len(t, events, 2)
	assert.Equal(t, "T000002", events[1].OwnerID)

	require.True(t, e.Unclaim(key))
	require.Len(t, events, 3)
	assert.Equal(t, "", events[2].OwnerID)
	assert.False(t, e.Unclaim(key))
	assert.Len(t, events, 3)

	// Restoring from storage is silent.
	e.Restore(key, "T000001", Policy{})
	assert.Len(t, events, 3)
}

func TestEngine_ReleasePortion_PublishesOwnerChanges(t *testing.T) {
	e, bus := newTestEngine(testConfig(), nil)
	town := newTestTown("T000001", 1000)
	for i := int32(0); i < 3; i++ {
		require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(i, 0), true))
	}

	var events []event.ChunkOwnerChanged
	event.Subscribe(bus, func(ev event.ChunkOwnerChanged) {
		events = append(events, ev)
	})

	released := e.ReleasePortion("T000001", 1, 0)
	assert.Equal(t, 3, released)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, "", ev.OwnerID)
		assert.Equal(t, testWorld, ev.WorldID)
	}
}

func TestEngine_BorderChunks(t *testing.T) {
	cfg := testConfig()
	cfg.UpgradeTiers = []config.UpgradeTier{{Level: 0, MaxChunks: -1, ClaimCost: 0}}
	e, _ := newTestEngine(cfg, nil)
	town := newTestTown("T000001", 0)

	// 3x3 block: the centre chunk is fully surrounded, the other 8 are
	// frontier.
	for x := int32(0); x < 3; x++ {
		for z := int32(0); z < 3; z++ {
			require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(x, z), true))
		}
	}

	border := e.BorderChunks("T000001")
	assert.Len(t, border, 8)
	assert.NotContains(t, border, chunkAt(1, 1))
}

func TestEngine_ReleasePortion_MinimumOverBorder(t *testing.T) {
	cfg := testConfig()
	cfg.UpgradeTiers = []config.UpgradeTier{{Level: 0, MaxChunks: -1, ClaimCost: 0}}
	e, bus := newTestEngine(cfg, nil)
	town := newTestTown("T000001", 0)

	for x := int32(0); x < 3; x++ {
		for z := int32(0); z < 3; z++ {
			require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(x, z), true))
		}
	}

	var events []event.ChunksLost
	event.Subscribe(bus, func(ev event.ChunksLost) {
		events = append(events, ev)
	})

	// Chance 0: the deterministic top-up alone must reach the minimum.
	released := e.ReleasePortion("T000001", 0, 3)
	assert.Equal(t, 3, released)
	assert.Equal(t, 6, e.ClaimCount("T000001"))

	// The interior chunk is never released.
	assert.Equal(t, "T000001", e.OwnerOf(chunkAt(1, 1)))

	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Released)
	assert.Equal(t, 6, events[0].Remaining)
}

func TestEngine_ReleasePortion_ChanceOne(t *testing.T) {
	cfg := testConfig()
	cfg.UpgradeTiers = []config.UpgradeTier{{Level: 0, MaxChunks: -1, ClaimCost: 0}}
	e, _ := newTestEngine(cfg, nil)
	town := newTestTown("T000001", 0)

	for x := int32(0); x < 3; x++ {
		for z := int32(0); z < 3; z++ {
			require.Equal(t, DenialNone, e.Claim(town, nil, chunkAt(x, z), true))
		}
	}

	// Chance 1 releases the whole frontier, minimum or not. The interior
	// chunk survives even though the minimum exceeds the border size.
	released := e.ReleasePortion("T000001", 1, 100)
	assert.Equal(t, 8, released)
	assert.Equal(t, 1, e.ClaimCount("T000001"))
	assert.Equal(t, "T000001", e.OwnerOf(chunkAt(1, 1)))
}

func TestEngine_ReleasePortion_NoClaims(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	assert.Equal(t, 0, e.ReleasePortion("T000001", 1, 5))
}

func TestEngine_Restore(t *testing.T) {
	e, _ := newTestEngine(testConfig(), nil)
	key := chunkAt(0, 0)

	e.Restore(key, "T000001", Policy{PvPEnabled: true})

	assert.Equal(t, "T000001", e.OwnerOf(key))
	p, ok := e.PolicyOf(key)
	require.True(t, ok)
	assert.True(t, p.PvPEnabled)
}
