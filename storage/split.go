package storage

import (
	"context"
)

// Split implements Store wrapping a pair of stores: gets are served by the
// reader (typically a CDN in front of the origin), everything else goes to the
// writer (the origin). Objects written through a Split may not be visible to
// its Get until the reader catches up with the writer.
type Split struct {
	reader Store
	writer Store
}

func NewSplit(reader, writer Store) Split {
	return Split{
		reader: reader,
		writer: writer,
	}
}

func (s Split) Get(ctx context.Context, key string) (value []byte, err error) {
	return s.reader.Get(ctx, key)
}

func (s Split) Put(ctx context.Context, key string, value []byte, contentType string) (err error) {
	return s.writer.Put(ctx, key, value, contentType)
}

func (s Split) Delete(ctx context.Context, key string) (err error) {
	return s.writer.Delete(ctx, key)
}

func (s Split) List(ctx context.Context, prefix string) (keys []string, err error) {
	return s.writer.List(ctx, prefix)
}

// Origin returns the store writes go to.
func (s Split) Origin() Store {
	return s.writer
}

// OriginOf returns the store that s writes to: the writer of a Split, or s
// itself. Reads that must observe the latest writes should go there.
func OriginOf(s Store) Store {
	if o, ok := s.(interface{ Origin() Store }); ok {
		return o.Origin()
	}
	return s
}
