// Package campaign implements the bulk delivery engine.
//
// A campaign is driven page by page by its caller: each Send call loads the
// target list and the suppression set, filters before paginating so offsets
// stay stable, dispatches one page to a bounded worker pool, and promotes
// permanent failures into the suppression set before returning.
//
// The engine depends on interfaces defined in this package and on
// sending.Sender; it never imports a transport directly.
package campaign
