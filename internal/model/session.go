package model

// Session is the device-local bearer token. An empty Token means logged out.
// ExpiresAt is in Unix milliseconds.
type Session struct {
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expiresAt"`
}

// LoginInfo caches the last server and account used on this device.
type LoginInfo struct {
	ServerAddress string `json:"serverAddress"`
	Email         string `json:"email"`
}
