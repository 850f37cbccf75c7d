// Package ir provides the canonical model types for nsboot provisioning runs.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - ComponentKind is a closed set; unknown kinds are rejected at compile time
//   - References between components are by ComponentKind, never by address
//   - Numeric literals are decimal strings (uint256 does not fit int64)
//   - All JSON tags use snake_case
//   - Logical clocks (seq) order step records, never wall-clock timestamps
package ir
