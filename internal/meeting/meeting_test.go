package meeting

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPassword(t *testing.T) {
	HashCost = bcrypt.MinCost

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)
	require.True(t, CheckPassword(hash, "s3cret"))
	require.False(t, CheckPassword(hash, "wrong"))

	empty, err := HashPassword("")
	require.NoError(t, err)
	require.Empty(t, empty)
	require.True(t, CheckPassword(empty, "anything"))
}

func TestBanRevokesAdmission(t *testing.T) {
	m := &Meeting{HostUserID: "host"}
	m.Allow("u2")
	m.Allow("u2")
	require.Equal(t, []string{"u2"}, m.AllowList)

	m.Ban("u2")
	require.True(t, m.IsBanned("u2"))
	require.False(t, m.IsAllowed("u2"))
	require.True(t, m.IsAllowed("host"))
}

func TestCode(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", NewError("admission", "R1", ErrCapacityExceeded))
	require.Equal(t, CodeRoomFull, Code(wrapped))
	require.Equal(t, CodeAccessDenied, Code(ErrAccessDenied))
	require.Equal(t, CodeInternal, Code(fmt.Errorf("boom")))

	var opErr *OpError
	require.ErrorAs(t, wrapped, &opErr)
	require.Equal(t, "admission", opErr.Op)
	require.Equal(t, "admission R1: meeting is full", opErr.Error())
}

func TestCloneIsDeep(t *testing.T) {
	m := &Meeting{Code: "R1", Chat: []ChatMessage{{Text: "a"}}, BanList: []string{"x"}}
	c := m.Clone()
	c.Chat[0].Text = "b"
	c.BanList = append(c.BanList, "y")
	require.Equal(t, "a", m.Chat[0].Text)
	require.Len(t, m.BanList, 1)
}
