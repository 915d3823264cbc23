// Package domain contains the core business entities and lifecycle rules
// of the batch engine: jobs, their tasks, and the status transitions both
// are allowed to make. It is independent of any storage or transport.
package domain
