package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads []any
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestConnectionRegistry_JoinBroadcast(t *testing.T) {
	reg := NewConnectionRegistry()
	now := time.Now()

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	reg.Add("c1", "user-aaaa", a)
	reg.Add("c2", "user-bbbb", b)
	reg.Add("c3", "user-cccc", c)

	_, ok := reg.Join("c1", "111111", "Nova", "", now)
	require.True(t, ok)
	reg.Join("c2", "111111", "Orion", "", now)
	reg.Join("c3", "222222", "Vega", "", now)

	assert.Equal(t, 2, reg.Count("111111"))
	assert.Len(t, reg.InRoom("111111"), 2)

	reg.Broadcast("111111", "hello", "c1")
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, c.count())

	prev, ok := reg.Join("c2", "222222", "Orion", "", now)
	require.True(t, ok)
	assert.Equal(t, "111111", prev.RoomCode)
	assert.Equal(t, 1, reg.Count("111111"))
	assert.Equal(t, 2, reg.Count("222222"))
}

func TestConnectionRegistry_CountsUniqueUsers(t *testing.T) {
	reg := NewConnectionRegistry()

	reg.Add("c1", "user-aaaa", &fakeConn{})
	reg.Add("c2", "user-aaaa", &fakeConn{})
	reg.Join("c1", "111111", "Nova", "", time.Now())
	reg.Join("c2", "111111", "Nova", "", time.Now())

	assert.Equal(t, 1, reg.Count("111111"))
}

func TestConnectionRegistry_LeaveAndRemove(t *testing.T) {
	reg := NewConnectionRegistry()
	reg.Add("c1", "user-aaaa", &fakeConn{})
	reg.Join("c1", "111111", "Nova", "", time.Now())

	prev, ok := reg.Leave("c1")
	require.True(t, ok)
	assert.Equal(t, "Nova", prev.Nickname)

	_, ok = reg.Leave("c1")
	assert.False(t, ok)

	s, ok := reg.Get("c1")
	require.True(t, ok)
	assert.Empty(t, s.RoomCode)

	_, ok = reg.Remove("c1")
	assert.True(t, ok)
	_, ok = reg.Get("c1")
	assert.False(t, ok)
}

func TestConnectionRegistry_DisconnectRoom(t *testing.T) {
	reg := NewConnectionRegistry()
	conns := []*fakeConn{{}, {}, {}}

	for i, c := range conns {
		id := string(rune('a' + i))
		reg.Add(id, "user-"+id+"xxxxxxx", c)
		reg.Join(id, "333333", "n"+id, "", time.Now())
	}

	n := reg.DisconnectRoom("333333")
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, reg.Count("333333"))

	for _, c := range conns {
		assert.True(t, c.closed)
	}
}
