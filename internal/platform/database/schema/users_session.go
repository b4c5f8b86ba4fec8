// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// UserSessionTable represents the 'users.session' table
type UserSessionTable struct {
	Table       string
	ID          string
	UserID      string
	TokenHash   string
	Fingerprint string
	IPAddress   string
	UserAgent   string
	CreatedAt   string
	ExpiresAt   string
}

// UserSession is the schema definition for users.session
var UserSession = UserSessionTable{
	Table:       "users.session",
	ID:          "id",
	UserID:      "userid",
	TokenHash:   "tokenhash",
	Fingerprint: "fingerprint",
	IPAddress:   "ipaddress",
	UserAgent:   "useragent",
	CreatedAt:   "createdat",
	ExpiresAt:   "expiresat",
}

// Columns returns all standard column names
func (t UserSessionTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.TokenHash, t.Fingerprint, t.IPAddress, t.UserAgent, t.CreatedAt, t.ExpiresAt,
	}
}
