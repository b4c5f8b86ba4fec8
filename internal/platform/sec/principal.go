// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// Principal is the resolved identity handed to downstream collaborators.
//
// It is built only after both the token signature and the session record have
// been verified. Downstream services decide authorization on their own.
type Principal struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	TenantID string   `json:"tenantId"`

	// Impersonated is set while a staff member operates inside another tenant.
	Impersonated     bool   `json:"impersonated,omitempty"`
	OriginalTenantID string `json:"originalTenantId,omitempty"`

	// SessionID identifies the session record backing the presented token.
	SessionID string `json:"-"`
	// AccessToken is the raw bearer token. Kept for logout and revoke-all.
	AccessToken string `json:"-"`
}

// PrincipalFromClaims projects verified access claims onto a Principal.
func PrincipalFromClaims(claims *Claims) *Principal {
	return &Principal{
		ID:               claims.Subject,
		Email:            claims.Email,
		Role:             UserRole(claims.Role),
		TenantID:         claims.TenantID,
		Impersonated:     claims.Impersonated,
		OriginalTenantID: claims.OriginalTenantID,
	}
}
