package models

import (
	"time"
)

// AuditRecord - неизменяемая запись журнала действий администратора
type AuditRecord struct {
	ID        string         `json:"id" db:"id"`
	AdminID   string         `json:"adminId" db:"admin_id"`
	Action    string         `json:"action" db:"action"`
	Target    string         `json:"target" db:"target"`
	Success   bool           `json:"success" db:"success"`
	Metadata  map[string]any `json:"metadata" db:"-"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

const (
	AuditActionVanish = "room.vanish"
)

type InsightKind string

const (
	InsightRoomCreated   InsightKind = "room_created"
	InsightRoomLocked    InsightKind = "room_locked"
	InsightRoomUnlocked  InsightKind = "room_unlocked"
	InsightRoomVanished  InsightKind = "room_vanished"
	InsightRoomEnded     InsightKind = "room_ended"
	InsightRoomsExpired  InsightKind = "rooms_expired"
	InsightAutoVanished  InsightKind = "room_auto_vanished"
	InsightMessageStored InsightKind = "message_stored"
)

// InsightEvent - уведомление для дашборда аналитики, доставка не гарантируется
type InsightEvent struct {
	Kind     InsightKind    `json:"kind"`
	RoomCode string         `json:"roomCode,omitempty"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}
