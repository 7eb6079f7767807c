package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// integrationTag selects the tests that start a PostgreSQL container.
const integrationTag = "integration"

// Test groups test targets (all, unit, integration).
type Test mg.Namespace

// All runs unit and integration tests.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-tags", integrationTag, "./...")
}

// Unit runs the tests that need nothing but a temporary directory.
func (Test) Unit() error {
	return sh.RunV(binGo, "test", "./...")
}

// Integration runs the PostgreSQL backend tests.
func (Test) Integration() error {
	return sh.RunV(binGo, "test", "-v", "-tags", integrationTag, "-run", "Postgres", "./internal/sqlstore/...")
}
