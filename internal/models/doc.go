// Package models defines the core domain models for the group ledger.
//
// # Entities
//
//   - Group: a set of people sharing expenses, with a ledger currency
//   - Membership: one row per (group, user) with a role and an active flag
//   - Invitation: a request for a user to join a group, with a one-shot
//     pending -> accepted/rejected lifecycle
//   - Expense: a payment by one member, split into Shares owed by members
//
// # Derived values
//
// Balances and Transfers are computed from the ledger on every read and are
// never persisted.
//
// # Design Principles
//
//  1. Nothing is hard-deleted: groups, memberships and expenses are
//     deactivated or flagged so ledger history stays attributable.
//  2. Relationships use ID strings, never pointers.
//  3. Money is always fixed-point (see package money).
package models
