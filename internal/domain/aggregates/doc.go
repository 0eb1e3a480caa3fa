// Package aggregates defines aggregate-level contracts and the canonical
// error taxonomy shared by the accumulation core and its store adapters.
package aggregates
