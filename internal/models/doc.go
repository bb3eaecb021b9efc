// Package models defines the core domain models for the roommates service.
//
// # Models
//
//   - Group: a household of at most MaxMembers users with exactly one owner
//   - Member: a user's membership in a group, stamped with the join date
//   - User: a user directory record, including the cached group name
//   - Task: a chore definition belonging to a group
//   - Assignment: one user's responsibility for a task in a given week
//
// # Design Principles
//
// 1. **IDs, not pointers**: relationships are expressed as ID strings
// 2. **Store-agnostic**: models carry no persistence tags or behaviour
// 3. **Invariants live in services**: models only describe shape; the
//    service layer enforces ownership, capacity and assignment rules
package models
