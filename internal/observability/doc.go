// Package observability builds the service logger and carries the request ID
// through context so every stage of an answer logs under the same ID.
package observability
