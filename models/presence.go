package models

// Presence status values stored in the user meta hash and carried on the wire.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceTransition is the payload published on the presence channel whenever
// a user's derived status flips. Timestamps are epoch milliseconds. Historic
// publishers only set lastSeen on offline transitions; we populate it on both
// so consumers never have to special-case the online shape.
type PresenceTransition struct {
	Username  string `json:"username"`
	Status    string `json:"status"`
	LastSeen  int64  `json:"lastSeen"`
	Timestamp int64  `json:"timestamp"`
}

type OnlineUsersResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type StatusResponse struct {
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}
