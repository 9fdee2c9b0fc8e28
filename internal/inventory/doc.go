// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

/*
Package inventory reconstructs the team security-alert hierarchy from the
GitHub GraphQL API.

The remote API advances only one pagination axis per request and returns at
most the first page of any nested axis, so a single query can never return
the complete three-level hierarchy (team, repository, alert). The Engine
compensates with drill-down: follow-up requests scoped to one outer identity
that advance exactly one inner cursor, repeated until every axis on every
node is exhausted.

The algorithm is an explicit work queue of (axis, scope, cursor) tasks
rather than recursion. Responses merge into an accumulated hierarchy keyed by
identity (team slug, repository name, alert ID); re-seen nodes are extended
in place with children appended in fetch order, never duplicated. A finished
result carries every PageInfo normalized to complete. Any remote error
aborts the whole call.

Read requests drive the engine directly with no locking; calls are
independent and each owns its own state.
*/
package inventory
