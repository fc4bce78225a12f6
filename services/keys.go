package services

// Key layout in the shared store. Other tooling reads these keys directly,
// so the names are part of the contract.
const (
	presenceChannel = "presence:channel"
	onlineSetKey    = "ONLINE_USERS"
	socketKeyPrefix = "socket:"
)

// socketKey is the per-session liveness key. It carries the TTL; the
// membership set entry does not expire on its own.
func socketKey(sessionID string) string {
	return socketKeyPrefix + sessionID
}

// userSocketsKey is the set of session ids currently registered to a user.
func userSocketsKey(username string) string {
	return "user:" + username + ":sockets"
}

// userMetaKey is the hash holding a user's derived status and lastSeen.
func userMetaKey(username string) string {
	return "user:" + username + ":meta"
}
