// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// TenantTable represents the 'tenants.tenant' table
type TenantTable struct {
	Table     string
	ID        string
	Name      string
	CreatedAt string
	UpdatedAt string
	DeletedAt string
}

// Tenant is the schema definition for tenants.tenant
var Tenant = TenantTable{
	Table:     "tenants.tenant",
	ID:        "id",
	Name:      "name",
	CreatedAt: "createdat",
	UpdatedAt: "updatedat",
	DeletedAt: "deletedat",
}
