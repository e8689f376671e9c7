package input

import (
	"github.com/qrave1/VanishRoom/internal/domain/models"
)

type CreateRoomInput struct {
	OwnerID    string `json:"ownerId"`
	Name       string `json:"name"`
	IsPublic   bool   `json:"isPublic"`
	TTLMinutes int    `json:"ttlMinutes"`
	// Caller - субъект лимита на создание комнат (IP или ownerId)
	Caller string `json:"-"`
}

type JoinInput struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type UpdateNicknameInput struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type SendMessageInput struct {
	// ClientID - стабильный идентификатор сообщения, выданный клиентом
	ClientID string             `json:"id"`
	RoomCode string             `json:"roomCode"`
	Content  string             `json:"content"`
	Type     models.MessageType `json:"type"`
	FileMeta *models.FileMeta   `json:"fileMeta"`
	ReplyTo  string             `json:"replyTo"`
}

type EditMessageInput struct {
	RoomCode  string `json:"roomCode"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type MessageRefInput struct {
	RoomCode  string `json:"roomCode"`
	MessageID string `json:"messageId"`
}

type ReactInput struct {
	RoomCode  string `json:"roomCode"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type TypingInput struct {
	IsTyping bool `json:"isTyping"`
}

type DestroyRoomInput struct {
	RoomCode string `json:"roomCode"`
	OwnerID  string `json:"ownerId"`
}
