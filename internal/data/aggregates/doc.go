// Package aggregates contains the GORM implementation of accumulation.Store.
//
// Writes run inside one transaction per compare-and-swap and are guarded by
// the row version, so concurrent processes sharing a database never lose an
// update.
package aggregates
