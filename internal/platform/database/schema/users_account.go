// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema names the tables and columns the repositories query.
//
// Column lists are ordered to match the Scan calls of the matching repository,
// so a new column must be appended in both places.
package schema

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table            string
	ID               string
	Email            string
	PasswordHash     string
	Role             string
	TenantID         string
	FailedAttempts   string
	LockedUntil      string
	TwoFactorEnabled string
	TwoFactorSecret  string
	LastLoginAt      string
	CreatedAt        string
	UpdatedAt        string
	DeletedAt        string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:            "users.account",
	ID:               "id",
	Email:            "email",
	PasswordHash:     "passwordhash",
	Role:             "role",
	TenantID:         "tenantid",
	FailedAttempts:   "failedattempts",
	LockedUntil:      "lockeduntil",
	TwoFactorEnabled: "twofactorenabled",
	TwoFactorSecret:  "twofactorsecret",
	LastLoginAt:      "lastloginat",
	CreatedAt:        "createdat",
	UpdatedAt:        "updatedat",
	DeletedAt:        "deletedat",
}

// Columns returns the selectable columns. deletedat is filtered on, never read.
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Email, t.PasswordHash, t.Role, t.TenantID,
		t.FailedAttempts, t.LockedUntil, t.TwoFactorEnabled, t.TwoFactorSecret,
		t.LastLoginAt, t.CreatedAt, t.UpdatedAt,
	}
}
