//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, invoked through
// the go:generate directive in contract/contract.go, pinned in go.mod.
package carechat

import (
	_ "go.uber.org/mock/mockgen"
)
