// Package acl implements the gateway access-control engine: a role DAG
// with ordered multiple inheritance, a resource tree, and per-rule
// assertions, queried through IsAllowed with a whitelist default.
//
// The engine is read-heavy during dispatch and edited rarely; all
// operations take the internal RWMutex, and IsAllowed completes
// synchronously with no suspension points.
package acl
