// Package memory provides process-local implementations of the service
// repositories. They back tests and single-instance development runs.
package memory
