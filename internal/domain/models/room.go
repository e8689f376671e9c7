package models

import (
	"time"
)

type RoomState string

const (
	RoomActive  RoomState = "active"
	RoomLocked  RoomState = "locked"
	RoomEnded   RoomState = "ended"
	RoomExpired RoomState = "expired"
)

type Room struct {
	Code  string `json:"code" bson:"code"`
	Token string `json:"-" bson:"token"`
	// OwnerID - постоянный идентификатор создателя, отдельный от Token
	OwnerID string `json:"-" bson:"ownerId"`

	Name     string `json:"name,omitempty" bson:"name,omitempty"`
	Slug     string `json:"slug,omitempty" bson:"slug,omitempty"`
	IsPublic bool   `json:"isPublic" bson:"isPublic"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`

	Participants []string `json:"-" bson:"participants"`

	IsLocked bool       `json:"isLocked" bson:"isLocked"`
	LockedAt *time.Time `json:"lockedAt,omitempty" bson:"lockedAt,omitempty"`

	IsEnded bool       `json:"isEnded" bson:"isEnded"`
	EndedAt *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	EndedBy string     `json:"-" bson:"endedBy,omitempty"`

	// VanishingAt - комнату забрал авто-удалятель; разблокировать её уже нельзя
	VanishingAt *time.Time `json:"-" bson:"vanishingAt,omitempty"`
}

func NewRoom(code, token, ownerID string, ttl time.Duration, now time.Time) *Room {
	return &Room{
		Code:         code,
		Token:        token,
		OwnerID:      ownerID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		Participants: []string{},
	}
}

func (r *Room) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// State выводит состояние комнаты; Expired не хранится отдельно и определяется по ExpiresAt
func (r *Room) State(now time.Time) RoomState {
	switch {
	case r.IsEnded:
		return RoomEnded
	case r.IsExpired(now):
		return RoomExpired
	case r.IsLocked:
		return RoomLocked
	default:
		return RoomActive
	}
}

func (r *Room) IsVanishing() bool {
	return r.VanishingAt != nil
}

func (r *Room) IsOwner(userID string) bool {
	return r.OwnerID != "" && r.OwnerID == userID
}
