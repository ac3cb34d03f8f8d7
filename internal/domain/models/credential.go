package models

import "time"

// Credential is an upstream access token captured for a user. Tokens are
// only honored on the IST calendar day they were issued; the scheduler
// treats a stale token as "no user logged in".
type Credential struct {
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
	IssuedAt    time.Time `json:"issued_at"`
}
