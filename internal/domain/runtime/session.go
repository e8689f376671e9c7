package runtime

import (
	"regexp"
	"time"
)

// Session - состояние одного живого соединения. Изменяется только транспортным слоем
type Session struct {
	ConnID   string    `json:"-"`
	UserID   string    `json:"userId"`
	RoomCode string    `json:"roomCode,omitempty"`
	Nickname string    `json:"nickname,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joinedAt,omitempty"`
}

func (s Session) InRoom(roomCode string) bool {
	return s.RoomCode != "" && s.RoomCode == roomCode
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ValidUserID проверяет только форму идентификатора, выбранного клиентом
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}
