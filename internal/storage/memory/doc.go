// Package memory provides in-process stores for development and tests: a blob
// store for report artifacts and the task run log.
package memory
