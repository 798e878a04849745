package elevation

import (
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Bounds used to detect that no source contributed a height range
const (
	bogusMin = 100000.0
	bogusMax = -100000.0
)

// EventType identifies a registry change
type EventType int

const (
	EventSourceAdded EventType = iota
	EventSourceClosed
	EventOrderChanged
)

// Event is delivered to observers after a registry change
type Event struct {
	Type     EventType
	Filename string
}

// Registry holds elevation sources in priority order plus the factories
// consulted when no open source covers a point. The registry owns every
// source it holds.
type Registry struct {
	mu        sync.Mutex
	sources   []Source
	factories []Factory
	observers []func(Event)

	autoLoad bool
	autoSort bool

	minHeight, maxHeight float64

	log *zap.Logger
}

// NewRegistry returns an empty registry with auto-load and auto-sort on
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		autoLoad:  true,
		autoSort:  true,
		minHeight: bogusMin,
		maxHeight: bogusMax,
		log:       log,
	}
}

// Observe registers fn to be called after every change
func (r *Registry) Observe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Registry) notify(ev Event) {
	r.mu.Lock()
	observers := append([]func(Event){}, r.observers...)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}

// AddSource appends src, re-sorts when auto-sort is on and recomputes the
// aggregate height range.
func (r *Registry) AddSource(src Source) {
	r.mu.Lock()
	r.addLocked(src)
	r.mu.Unlock()

	r.log.Debug("Opened elevation cell",
		zap.String("file", src.Filename()),
		zap.Stringer("kind", src.Kind()))
	r.notify(Event{Type: EventSourceAdded, Filename: src.Filename()})
}

func (r *Registry) addLocked(src Source) {
	r.sources = append(r.sources, src)
	if r.autoSort {
		sort.SliceStable(r.sources, func(i, j int) bool {
			return r.sources[i].MeanSpacingMeters() < r.sources[j].MeanSpacingMeters()
		})
	}
	r.updateMinMaxLocked()
}

func (r *Registry) updateMinMaxLocked() {
	lo, hi := bogusMin, bogusMax
	for _, s := range r.sources {
		if v := s.MinHeight(); v < lo {
			lo = v
		}
		if v := s.MaxHeight(); v > hi {
			hi = v
		}
	}
	if lo != bogusMin {
		r.minHeight = lo
	}
	if hi != bogusMax {
		r.maxHeight = hi
	}
}

// HeightAboveMSL returns the first non-null height in priority order.
// Sources that miss are closed to keep descriptors down. When every open
// source misses and auto-load is on, factories are asked for a new covering
// source outside the lock.
func (r *Registry) HeightAboveMSL(pt orb.Point) (float64, bool) {
	r.mu.Lock()
	for _, s := range r.sources {
		if h, ok := s.HeightAboveMSL(pt); ok {
			r.mu.Unlock()
			return h, true
		}
		s.Close()
	}
	autoLoad := r.autoLoad
	factories := append([]Factory{}, r.factories...)
	r.mu.Unlock()

	if !autoLoad {
		return 0, false
	}

	for _, f := range factories {
		src := f.NewSource(pt)
		if src == nil {
			continue
		}

		if existing := r.source(src.Filename()); existing != nil {
			src.Close()
			if h, ok := existing.HeightAboveMSL(pt); ok {
				return h, true
			}
			continue
		}

		h, ok := src.HeightAboveMSL(pt)
		if !ok {
			src.Close()
			continue
		}
		r.AddSource(src)
		return h, true
	}
	return 0, false
}

// source returns the registered source named filename, or nil
func (r *Registry) source(filename string) Source {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(filename); i >= 0 {
		return r.sources[i]
	}
	return nil
}

func (r *Registry) indexLocked(filename string) int {
	for i, s := range r.sources {
		if s.Filename() == filename {
			return i
		}
	}
	return -1
}

// SourceForPoint returns the first registered source whose bounds cover pt,
// falling back to the factories when auto-load is on. A source produced by
// a factory is not registered; callers close it.
func (r *Registry) SourceForPoint(pt orb.Point) (Source, bool) {
	r.mu.Lock()
	for _, s := range r.sources {
		if s.PointHasCoverage(pt) {
			r.mu.Unlock()
			return s, false
		}
		s.Close()
	}
	autoLoad := r.autoLoad
	factories := append([]Factory{}, r.factories...)
	r.mu.Unlock()

	if !autoLoad {
		return nil, false
	}
	for _, f := range factories {
		if src := f.NewSource(pt); src != nil {
			if src.PointHasCoverage(pt) {
				return src, true
			}
			src.Close()
		}
	}
	return nil, false
}

// PointHasCoverage reports whether a registered source or a factory covers pt
func (r *Registry) PointHasCoverage(pt orb.Point) bool {
	src, transient := r.SourceForPoint(pt)
	if src == nil {
		return false
	}
	if transient {
		src.Close()
	}
	return true
}

// Accuracy returns the absolute CE90 and LE90 of the source covering pt
func (r *Registry) Accuracy(pt orb.Point) (ce90, le90 float64, ok bool) {
	src, transient := r.SourceForPoint(pt)
	if src == nil {
		return 0, 0, false
	}
	ce90, le90 = src.AccuracyCE90(), src.AccuracyLE90()
	if transient {
		src.Close()
	}
	return ce90, le90, true
}

// CellFilenameForPoint returns the file of the source covering pt
func (r *Registry) CellFilenameForPoint(pt orb.Point) (string, bool) {
	src, transient := r.SourceForPoint(pt)
	if src == nil {
		return "", false
	}
	name := src.Filename()
	if transient {
		src.Close()
	}
	return name, true
}

// MeanSpacingMeters returns the spacing of the highest priority source
func (r *Registry) MeanSpacingMeters() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sources) == 0 {
		return 0, false
	}
	return r.sources[0].MeanSpacingMeters(), true
}

// IsCellOpen reports whether filename is registered
func (r *Registry) IsCellOpen(filename string) bool {
	return r.source(filename) != nil
}

// OpenCells returns registered filenames in priority order
func (r *Registry) OpenCells() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Filename()
	}
	return names
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// CloseCell removes and closes the first source named filename
func (r *Registry) CloseCell(filename string) bool {
	r.mu.Lock()
	i := r.indexLocked(filename)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	src := r.sources[i]
	r.sources = append(r.sources[:i], r.sources[i+1:]...)
	r.mu.Unlock()

	if err := src.Close(); err != nil {
		r.log.Debug("Close elevation cell failed", zap.String("file", filename), zap.Error(err))
	}
	r.notify(Event{Type: EventSourceClosed, Filename: filename})
	return true
}

// CloseAll removes and closes every source
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sources := r.sources
	r.sources = nil
	r.mu.Unlock()

	var err error
	for _, s := range sources {
		err = multierr.Append(err, s.Close())
	}
	for _, s := range sources {
		r.notify(Event{Type: EventSourceClosed, Filename: s.Filename()})
	}
	return err
}

// swapLocked swaps sources i and i+1
func (r *Registry) swapLocked(i int) {
	r.sources[i], r.sources[i+1] = r.sources[i+1], r.sources[i]
}

// move repeatedly swaps filename one step toward the front (up) or back.
// It returns false when filename is absent or already in place.
func (r *Registry) move(filename string, up, once bool) bool {
	r.mu.Lock()
	i := r.indexLocked(filename)
	moved := false
	for i >= 0 {
		if up {
			if i == 0 {
				break
			}
			r.swapLocked(i - 1)
			i--
		} else {
			if i == len(r.sources)-1 {
				break
			}
			r.swapLocked(i)
			i++
		}
		moved = true
		if once {
			break
		}
	}
	r.mu.Unlock()

	if moved {
		r.notify(Event{Type: EventOrderChanged, Filename: filename})
	}
	return moved
}

func (r *Registry) MoveUpOne(filename string) bool    { return r.move(filename, true, true) }
func (r *Registry) MoveDownOne(filename string) bool  { return r.move(filename, false, true) }
func (r *Registry) MoveToTop(filename string) bool    { return r.move(filename, true, false) }
func (r *Registry) MoveToBottom(filename string) bool { return r.move(filename, false, false) }

// AddFactory appends a factory consulted on misses
func (r *Registry) AddFactory(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, f)
}

// FactoryForDirectory returns the factory serving dir
func (r *Registry) FactoryForDirectory(dir string) (Factory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.factories {
		if f.Directory() == dir {
			return f, true
		}
	}
	return nil, false
}

// Factories returns the factories in registration order
func (r *Registry) Factories() []Factory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Factory{}, r.factories...)
}

// Sources returns the registered sources in priority order
func (r *Registry) Sources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Source{}, r.sources...)
}

// MinHeight and MaxHeight return the aggregate height range. Before any
// source contributes they return the bogus bounds 100000 and -100000.
func (r *Registry) MinHeight() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minHeight
}

func (r *Registry) MaxHeight() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxHeight
}

func (r *Registry) SetAutoLoad(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoLoad = on
}

func (r *Registry) AutoLoad() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoLoad
}

func (r *Registry) SetAutoSort(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoSort = on
}

func (r *Registry) AutoSort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoSort
}
