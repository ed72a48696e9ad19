// Package scheduler runs the named SEO tasks on their cron schedules and on
// demand. It owns one timer goroutine per scheduled task, guards against two
// concurrent runs of the same task, aggregates service health and shuts every
// service down in registration order.
package scheduler
