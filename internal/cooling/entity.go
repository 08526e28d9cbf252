package cooling

import (
	"context"
	"fmt"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// SourceKind identifies where an entity reads its state from.
type SourceKind int

const (
	SourceInv SourceKind = iota // in-process inventory
	SourceAPI                   // platform abstraction API
	SourceDB                    // shared state database
	numSources
)

// updateOrder is the priority in which sources are tried on every update
var updateOrder = [...]SourceKind{SourceInv, SourceAPI, SourceDB}

func (k SourceKind) String() string {
	switch k {
	case SourceInv:
		return "inv"
	case SourceAPI:
		return "api"
	case SourceDB:
		return "db"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Entity is a named piece of cooling hardware that refreshes itself from
// whichever of its sources answers first.
type Entity interface {
	Name() string
	// Update refreshes the cached state. It reports false when no
	// registered source produced a reading; the previous state is kept.
	Update(ctx context.Context) bool
	Sources() []SourceKind
	// ListedBy reports whether the latest discovery found the entity
	// through the given kind of source.
	ListedBy(kind SourceKind) bool
	base() *entityBase
	resetListed()
}

type entityBase struct {
	name string
	// seen is the collection window in which the entity was last listed
	seen uint64
}

func (b *entityBase) Name() string {
	return b.name
}

func (b *entityBase) base() *entityBase {
	return b
}

// slots holds at most one source per kind. The first registration of a
// kind wins and later ones are ignored.
type slots[T any] struct {
	src    [numSources]T
	set    [numSources]bool
	listed [numSources]bool
}

func (s *slots[T]) register(kind SourceKind, src T) bool {
	s.listed[kind] = true
	if s.set[kind] {
		return false
	}
	s.src[kind] = src
	s.set[kind] = true
	return true
}

func (s *slots[T]) get(kind SourceKind) (T, bool) {
	return s.src[kind], s.set[kind]
}

func (s *slots[T]) kinds() []SourceKind {
	var out []SourceKind
	for _, kind := range updateOrder {
		if s.set[kind] {
			out = append(out, kind)
		}
	}
	return out
}

// tryRead runs one source access, turning a panicking driver into an
// ordinary error so the remaining sources still get their turn.
func tryRead[T any](read func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrSourcePanic, r)
		}
	}()
	return read()
}

// dbRow addresses one row of a state DB table.
type dbRow struct {
	db    platform.StateDB
	table string
	key   string
}

func (r dbRow) fields(ctx context.Context) (map[string]string, error) {
	fields, err := r.db.Row(ctx, r.table, r.key)
	if err != nil {
		return nil, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, errors.New().WithData(ErrSourceStale, r.table+"|"+r.key)
	}
	return fields, nil
}
