package dto

import (
	"time"

	"github.com/qrave1/VanishRoom/internal/domain/models"
)

type CreateRoomRequest struct {
	OwnerID    string `json:"ownerId"`
	Name       string `json:"name"`
	IsPublic   bool   `json:"isPublic"`
	TTLMinutes int    `json:"ttlMinutes"`
}

type RoomResponse struct {
	Code      string     `json:"code"`
	Name      string     `json:"name,omitempty"`
	Slug      string     `json:"slug,omitempty"`
	IsPublic  bool       `json:"isPublic"`
	IsLocked  bool       `json:"isLocked"`
	LockedAt  *time.Time `json:"lockedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UserCount int        `json:"userCount"`
}

// CreateRoomResponse - токен комнаты отдаётся только создателю
type CreateRoomResponse struct {
	RoomResponse
	Token string `json:"token"`
}

func NewRoomResponseFromModel(room *models.Room, userCount int) RoomResponse {
	return RoomResponse{
		Code:      room.Code,
		Name:      room.Name,
		Slug:      room.Slug,
		IsPublic:  room.IsPublic,
		IsLocked:  room.IsLocked,
		LockedAt:  room.LockedAt,
		CreatedAt: room.CreatedAt,
		ExpiresAt: room.ExpiresAt,
		UserCount: userCount,
	}
}

type EndRoomRequest struct {
	OwnerID string `json:"ownerId"`
}

type ListMessagesResponse struct {
	Messages []*models.Message `json:"messages"`
}

type UploadRequest struct {
	UserID   string `json:"userId"`
	FileName string `json:"fileName"`
}
