package registry

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinIsIdempotent(t *testing.T) {
	r := New(nil)

	members, err := r.Join("R1", Member{ConnID: "a", Name: "Ann"})
	require.NoError(t, err)
	require.Len(t, members, 1)

	members, err = r.Join("R1", Member{ConnID: "a", Name: "Ann"})
	require.ErrorIs(t, err, ErrAlreadyJoined)
	require.Len(t, members, 1)
	require.Len(t, r.Members("R1"), 1)
}

func TestConnectionInOneRoomOnly(t *testing.T) {
	r := New(nil)

	_, err := r.Join("R1", Member{ConnID: "a"})
	require.NoError(t, err)
	_, err = r.Join("R2", Member{ConnID: "a"})
	require.ErrorIs(t, err, ErrInOtherRoom)
	require.Empty(t, r.Members("R2"))

	code, err := r.LookupRoom("a")
	require.NoError(t, err)
	require.Equal(t, "R1", code)
}

func TestLeaveEmitsEmptied(t *testing.T) {
	var emptied []string
	r := New(func(code string) { emptied = append(emptied, code) })

	_, err := r.Join("R1", Member{ConnID: "a"})
	require.NoError(t, err)
	_, err = r.Join("R1", Member{ConnID: "b"})
	require.NoError(t, err)
	require.Equal(t, 1, r.RoomCount())

	code, remaining, err := r.Leave("a")
	require.NoError(t, err)
	require.Equal(t, "R1", code)
	require.Equal(t, []string{"b"}, connIDs(remaining))
	require.Empty(t, emptied)

	_, remaining, err = r.Leave("b")
	require.NoError(t, err)
	require.Empty(t, remaining)
	require.Equal(t, []string{"R1"}, emptied)
	require.Zero(t, r.RoomCount())

	_, err = r.LookupRoom("b")
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = r.Leave("b")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMembersKeepJoinOrder(t *testing.T) {
	r := New(nil)
	for _, id := range []string{"c", "a", "b"} {
		_, err := r.Join("R1", Member{ConnID: id})
		require.NoError(t, err)
	}
	require.Equal(t, []string{"c", "a", "b"}, connIDs(r.Members("R1")))
}

// Random concurrent joins and leaves never produce duplicates or members
// that are not joined.
func TestConcurrentMembershipStaysConsistent(t *testing.T) {
	r := New(nil)
	rooms := []string{"R1", "R2", "R3"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				id := fmt.Sprintf("c%d", rng.Intn(20))
				if rng.Intn(2) == 0 {
					r.Join(rooms[rng.Intn(len(rooms))], Member{ConnID: id})
				} else {
					r.Leave(id)
				}
				for _, code := range rooms {
					r.Locked(code, func(tx *Tx) {
						seen := map[string]bool{}
						for _, m := range tx.Members() {
							if seen[m.ConnID] {
								t.Errorf("duplicate %s in %s", m.ConnID, code)
							}
							seen[m.ConnID] = true
							if got, err := r.LookupRoom(m.ConnID); err != nil || got != code {
								t.Errorf("%s listed in %s but registered in %q", m.ConnID, code, got)
							}
						}
					})
				}
			}
		}(int64(w))
	}
	wg.Wait()
}

func connIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ConnID)
	}
	return ids
}
