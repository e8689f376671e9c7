package dto

type IssuePairingRequest struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

type RedeemPairingRequest struct {
	Code string `json:"code"`
}
