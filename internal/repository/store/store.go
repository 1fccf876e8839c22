package store

// Key addresses one cached tile.
type Key struct {
	Zoom int
	X    int
	Y    int
}

// Store is a persistent write-once tile store. Entries are raw encoded
// image bytes keyed by (zoom, x, y).
type Store interface {
	// Get returns the stored bytes for k. A miss is (nil, false, nil),
	// never an error.
	Get(k Key) ([]byte, bool, error)

	// Put stores data under k unless an entry already exists. Duplicate
	// keys are silently ignored: the first write wins. Put does not
	// report whether it actually inserted.
	Put(k Key, data []byte) error
}
