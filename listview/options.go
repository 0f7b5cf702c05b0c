package listview

import "github.com/jrsteele09/go-recordstore/recordstore"

// Opener resolves a store path to an open RecordStore. A view keeps only the
// path of its source and calls its Opener when it needs the records.
type Opener func(path string) (recordstore.RecordStore, error)

type config struct {
	opener      Opener
	description string
}

// Option is a type for functions that configure list view operations.
type Option func(c *config)

// WithOpener returns an Option that sets how a view's source store is opened.
// The default is OpenStore, which opens file stores and list views.
func WithOpener(opener Opener) Option {
	return func(c *config) {
		c.opener = opener
	}
}

// WithDescription returns an Option that sets the description Construct
// records for a new view.
func WithDescription(description string) Option {
	return func(c *config) {
		c.description = description
	}
}

func newConfig(options []Option) config {
	c := config{opener: OpenStore}
	for _, opt := range options {
		opt(&c)
	}
	return c
}
