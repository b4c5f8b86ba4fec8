// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid issues the time-ordered identifiers used as primary keys for
accounts, sessions and tenants.

Version 7 values sort by creation time, so session listings and B-tree
inserts follow issue order.
*/
package uuid

import "github.com/google/uuid"

// # Generators

// New returns a fresh UUIDv7 string. It panics only if the system entropy
// source fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("uuid: generate v7: " + err.Error())
	}
	return id.String()
}

// # Validation

// Valid reports whether s is a canonical hyphenated UUID of any version.
func Valid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
