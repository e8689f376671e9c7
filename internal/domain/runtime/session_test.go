package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID("3f2b9c1e-8a7d-4e55-9c31-0b1d2e3f4a5b"))
	assert.True(t, ValidUserID("user_12345"))
	assert.False(t, ValidUserID("short"))
	assert.False(t, ValidUserID("has space in it"))
	assert.False(t, ValidUserID(""))
}

func TestSession_InRoom(t *testing.T) {
	s := Session{RoomCode: "123456"}
	assert.True(t, s.InRoom("123456"))
	assert.False(t, s.InRoom("654321"))
	assert.False(t, Session{}.InRoom(""))
}
