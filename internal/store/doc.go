// Package store declares the repository for the task run log.
package store
