package constant

// Ключи структурированных логов
const (
	Error     = "error"
	RoomCode  = "room_code"
	UserID    = "user_id"
	OwnerID   = "owner_id"
	ClaimedID = "claimed_id"
	ConnID    = "conn_id"
	AdminID   = "admin_id"
	MessageID = "message_id"
	Action    = "action"
	Reason    = "reason"
	Count     = "count"
	EventType = "event_type"
	Duration  = "duration"
)
