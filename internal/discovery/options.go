package discovery

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("discovery: invalid options")

// Filter selects which classified entries a scan yields.
type Filter string

const (
	// FilterImages yields supported image files only.
	FilterImages Filter = "images"
	// FilterAll yields directories and every file.
	FilterAll Filter = "all"
)

// Order selects the sibling order within each directory.
type Order string

const (
	// OrderPath yields entries in byte-wise path order, directories keyed
	// with a trailing separator. Stable across restarts and resumable.
	OrderPath Order = "path"
	// OrderMtime yields newest entries first within each directory.
	OrderMtime Order = "mtime"
)

// Options configures a scan.
type Options struct {
	Recursive  bool
	SkipHidden bool
	Filter     Filter
	Order      Order
	// ReadAhead is how many classified entries the walker may buffer ahead
	// of the consumer. In the High band it drops to 1.
	ReadAhead int
	// CriticalPause is the fixed delay inserted before each yield in the Critical band.
	CriticalPause time.Duration
}

// DefaultOptions returns the default scan options.
func DefaultOptions() Options {
	return Options{
		Recursive:     false,
		SkipHidden:    true,
		Filter:        FilterImages,
		Order:         OrderPath,
		ReadAhead:     64,
		CriticalPause: 25 * time.Millisecond,
	}
}

// Validate reports the first out-of-range option.
func (o Options) Validate() error {
	switch o.Filter {
	case FilterImages, FilterAll:
	default:
		return fmt.Errorf("%w: unknown filter %q", ErrInvalidOptions, o.Filter)
	}
	switch o.Order {
	case OrderPath, OrderMtime:
	default:
		return fmt.Errorf("%w: unknown order %q", ErrInvalidOptions, o.Order)
	}
	if o.ReadAhead < 1 {
		return fmt.Errorf("%w: read-ahead must be at least 1, got %d", ErrInvalidOptions, o.ReadAhead)
	}
	if o.CriticalPause < 0 {
		return fmt.Errorf("%w: negative critical pause %v", ErrInvalidOptions, o.CriticalPause)
	}
	return nil
}
