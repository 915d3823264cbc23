// Package service contains the application's use cases: starting and
// controlling batch jobs, and the per-kind handlers that process individual
// work items. Services sit between the HTTP layer and the engine/stores and
// own error translation between those layers.
package service
