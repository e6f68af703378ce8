package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/parlor/internal/core"
	"github.com/avolkov/parlor/internal/domain"
)

func TestRoomStore_DefaultRoomAlwaysExists(t *testing.T) {
	store := NewRoomStore("General", 200)
	assert.Equal(t, []string{"General"}, store.RoomNames())

	// Removing the last member must not delete the default room.
	require.NoError(t, store.AddMember("General", "c1", "alice"))
	_, removed, deleted := store.RemoveMember("General", "c1")
	assert.True(t, removed)
	assert.False(t, deleted)
	assert.Equal(t, []string{"General"}, store.RoomNames())
}

func TestRoomStore_LazyCreateAndCreationOrder(t *testing.T) {
	store := NewRoomStore("General", 200)
	require.NoError(t, store.AddMember("zebra", "c1", "alice"))
	require.NoError(t, store.AddMember("apple", "c2", "bob"))

	// Creation order, not sorted.
	assert.Equal(t, []string{"General", "zebra", "apple"}, store.RoomNames())

	store.EnsureRoom("zebra")
	assert.Len(t, store.RoomNames(), 3)
}

func TestRoomStore_EmptyRoomDeleted(t *testing.T) {
	store := NewRoomStore("General", 200)
	require.NoError(t, store.AddMember("temp", "c1", "alice"))
	store.AppendMessage("temp", domain.NewMessage("alice", "hi"))

	display, removed, deleted := store.RemoveMember("temp", "c1")
	assert.Equal(t, "alice", display)
	assert.True(t, removed)
	assert.True(t, deleted)
	assert.Equal(t, []string{"General"}, store.RoomNames())

	// History went with the room.
	assert.Empty(t, store.HistorySnapshot("temp"))
}

func TestRoomStore_RemoveMember_AbsentIsNoop(t *testing.T) {
	store := NewRoomStore("General", 200)

	_, removed, deleted := store.RemoveMember("nowhere", "c1")
	assert.False(t, removed)
	assert.False(t, deleted)

	_, removed, _ = store.RemoveMember("General", "ghost")
	assert.False(t, removed)
}

func TestRoomStore_AddMember_RoomLevelNameConflict(t *testing.T) {
	store := NewRoomStore("General", 200)
	require.NoError(t, store.AddMember("General", "c1", "alice"))

	assert.ErrorIs(t, store.AddMember("General", "c2", "alice"), ErrNameInRoom)

	// Re-adding the same connection under the same name is fine.
	require.NoError(t, store.AddMember("General", "c1", "alice"))

	assert.ElementsMatch(t, []string{"alice"}, store.MemberNames("General"))
}

func TestRoomStore_HistoryBound(t *testing.T) {
	const limit = 5
	store := NewRoomStore("General", limit)
	for i := 0; i < limit*3; i++ {
		store.AppendMessage("General", domain.Message{Name: "alice", Body: fmt.Sprintf("m%d", i), TS: int64(i)})
	}

	history := store.HistorySnapshot("General")
	require.Len(t, history, limit)
	// Exactly the last limit messages, oldest first.
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("m%d", limit*2+i), msg.Body)
	}
}

func TestRoomStore_AppendToAbsentRoomDropped(t *testing.T) {
	store := NewRoomStore("General", 200)
	store.AppendMessage("nowhere", domain.NewMessage("alice", "hi"))
	assert.Empty(t, store.HistorySnapshot("nowhere"))
	assert.Equal(t, []string{"General"}, store.RoomNames())
}

func TestRoomStore_HistorySnapshotIsACopy(t *testing.T) {
	store := NewRoomStore("General", 200)
	store.AppendMessage("General", domain.NewMessage("alice", "hi"))

	snap := store.HistorySnapshot("General")
	snap[0].Body = "mutated"

	assert.Equal(t, "hi", store.HistorySnapshot("General")[0].Body)
}

// A join racing the departure of a room's last member must never land in an
// orphaned room struct: once AddMember reports success the member has to be
// visible to membership snapshots and the room present in RoomNames.
func TestRoomStore_JoinSurvivesConcurrentEmptyRoomDeletion(t *testing.T) {
	for i := 0; i < 5000; i++ {
		store := NewRoomStore("General", 10)
		require.NoError(t, store.AddMember("temp", "b", "bob"))

		var wg sync.WaitGroup
		wg.Add(2)
		var addErr error
		go func() {
			defer wg.Done()
			store.RemoveMember("temp", "b")
		}()
		go func() {
			defer wg.Done()
			addErr = store.AddMember("temp", "a", "alice")
		}()
		wg.Wait()

		require.NoError(t, addErr, "iter %d", i)
		require.Contains(t, store.MemberIDs("temp"), core.ConnID("a"), "iter %d", i)
		require.Contains(t, store.RoomNames(), "temp", "iter %d", i)
		require.Contains(t, store.MemberNames("temp"), "alice", "iter %d", i)
	}
}

func TestRoomStore_Infos(t *testing.T) {
	store := NewRoomStore("General", 200)
	require.NoError(t, store.AddMember("General", "c1", "alice"))
	require.NoError(t, store.AddMember("temp", "c2", "bob"))

	infos := store.Infos()
	require.Len(t, infos, 2)
	assert.Equal(t, RoomInfo{Name: "General", MemberCount: 1}, infos[0])
	assert.Equal(t, RoomInfo{Name: "temp", MemberCount: 1}, infos[1])
}
