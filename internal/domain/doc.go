// Package domain re-exports the OMEMO coordinator's data types and
// contracts from the types and interfaces subpackages, so callers import a
// single package.
package domain
