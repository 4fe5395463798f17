// Package session pages through a discovery scan.
//
// A Session owns at most one running scan. NextBatch pulls up to a page of
// entries from it, in scan order, and hands back a continuation token that
// can resume the listing later, even from a fresh Session when the scan uses
// path order.
//
// Cancel, Reset and Initialize advance the session's generation. Entries of
// a superseded generation are never delivered afterwards.
package session
