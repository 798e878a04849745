package elevation

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
)

// fakeSource reports a constant height over its bounds
type fakeSource struct {
	name     string
	bound    orb.Bound
	height   float64
	spacing  float64
	min, max float64
	ce, le   float64
	missFor  atomic.Int32
	closes   atomic.Int32
}

func newFake(name string, minLon, minLat, maxLon, maxLat, height, spacing float64) *fakeSource {
	return &fakeSource{
		name:    name,
		bound:   orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}},
		height:  height,
		spacing: spacing,
		min:     height,
		max:     height,
	}
}

func (f *fakeSource) Filename() string                   { return f.name }
func (f *fakeSource) Kind() Kind                         { return KindSrtmCell }
func (f *fakeSource) Bounds() orb.Bound                  { return f.bound }
func (f *fakeSource) PointHasCoverage(pt orb.Point) bool { return f.bound.Contains(pt) }
func (f *fakeSource) MinHeight() float64                 { return f.min }
func (f *fakeSource) MaxHeight() float64                 { return f.max }
func (f *fakeSource) NullHeight() float64                { return srtmNull }
func (f *fakeSource) MeanSpacingMeters() float64         { return f.spacing }
func (f *fakeSource) AccuracyCE90() float64               { return f.ce }
func (f *fakeSource) AccuracyLE90() float64               { return f.le }

func (f *fakeSource) HeightAboveMSL(pt orb.Point) (float64, bool) {
	if !f.bound.Contains(pt) {
		return 0, false
	}
	if f.missFor.Load() > 0 {
		f.missFor.Add(-1)
		return 0, false
	}
	return f.height, true
}

func (f *fakeSource) Close() error {
	f.closes.Add(1)
	return nil
}

// fakeFactory hands out a fresh source from build on every call
type fakeFactory struct {
	dir   string
	build func(pt orb.Point) Source
	calls atomic.Int32
}

func (f *fakeFactory) Directory() string { return f.dir }
func (f *fakeFactory) Kind() Kind        { return KindSrtmDirectory }

func (f *fakeFactory) NewSource(pt orb.Point) Source {
	f.calls.Add(1)
	return f.build(pt)
}

func TestRegistryPriority(t *testing.T) {
	r := NewRegistry(nil)
	r.AddSource(newFake("coarse", 0, 0, 10, 10, 1, 900))
	r.AddSource(newFake("east", 20, 0, 30, 10, 2, 30))
	r.AddSource(newFake("north", 0, 20, 10, 30, 3, 90))

	tests := []struct {
		pt   orb.Point
		want float64
	}{
		{orb.Point{5, 5}, 1},
		{orb.Point{25, 5}, 2},
		{orb.Point{5, 25}, 3},
	}
	for _, tt := range tests {
		if h, ok := r.HeightAboveMSL(tt.pt); !ok || h != tt.want {
			t.Errorf("HeightAboveMSL(%v) = %g, %v, want %g", tt.pt, h, ok, tt.want)
		}
	}
	if diff := cmp.Diff([]string{"east", "north", "coarse"}, r.OpenCells()); diff != "" {
		t.Errorf("OpenCells() order mismatch (-want +got):\n%s", diff)
	}

	r.AddSource(newFake("fine", 4, 4, 6, 6, 9, 10))
	if h, _ := r.HeightAboveMSL(orb.Point{5, 5}); h != 9 {
		t.Errorf("after adding finer source HeightAboveMSL = %g, want 9", h)
	}
	if h, _ := r.HeightAboveMSL(orb.Point{1, 1}); h != 1 {
		t.Errorf("outside finer source HeightAboveMSL = %g, want 1", h)
	}
	if _, ok := r.HeightAboveMSL(orb.Point{50, 50}); ok {
		t.Error("HeightAboveMSL(uncovered) succeeded")
	}
}

func TestRegistryNoAutoSort(t *testing.T) {
	r := NewRegistry(nil)
	r.SetAutoSort(false)
	r.AddSource(newFake("coarse", 0, 0, 10, 10, 1, 900))
	r.AddSource(newFake("fine", 0, 0, 10, 10, 2, 10))

	if h, _ := r.HeightAboveMSL(orb.Point{5, 5}); h != 1 {
		t.Errorf("HeightAboveMSL = %g, want registration order answer 1", h)
	}
}

func TestRegistryClosesMisses(t *testing.T) {
	r := NewRegistry(nil)
	a := newFake("a", 0, 0, 1, 1, 1, 10)
	b := newFake("b", 5, 5, 6, 6, 2, 20)
	r.AddSource(a)
	r.AddSource(b)

	if h, ok := r.HeightAboveMSL(orb.Point{5.5, 5.5}); !ok || h != 2 {
		t.Fatalf("HeightAboveMSL = %g, %v, want 2", h, ok)
	}
	if a.closes.Load() != 1 {
		t.Errorf("missed source closed %d times, want 1", a.closes.Load())
	}
	if b.closes.Load() != 0 {
		t.Errorf("answering source closed %d times, want 0", b.closes.Load())
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, closing a miss must not unregister it", r.Len())
	}
}

func TestRegistryAutoLoad(t *testing.T) {
	r := NewRegistry(nil)
	f := &fakeFactory{dir: "/srtm", build: func(pt orb.Point) Source {
		if pt[0] < 0 {
			return nil
		}
		return newFake("cell", 0, 0, 1, 1, 42, 30)
	}}
	r.AddFactory(f)

	if h, ok := r.HeightAboveMSL(orb.Point{0.5, 0.5}); !ok || h != 42 {
		t.Fatalf("HeightAboveMSL = %g, %v, want 42", h, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}

	if h, _ := r.HeightAboveMSL(orb.Point{0.2, 0.2}); h != 42 {
		t.Errorf("second HeightAboveMSL = %g, want 42", h)
	}
	if f.calls.Load() != 1 {
		t.Errorf("factory called %d times, want 1", f.calls.Load())
	}

	if _, ok := r.HeightAboveMSL(orb.Point{-5, 0.5}); ok {
		t.Error("HeightAboveMSL(no factory coverage) succeeded")
	}

	r.SetAutoLoad(false)
	r.CloseAll()
	if _, ok := r.HeightAboveMSL(orb.Point{0.5, 0.5}); ok {
		t.Error("HeightAboveMSL with auto-load off succeeded")
	}
}

func TestRegistryFactoryWithoutHeight(t *testing.T) {
	r := NewRegistry(nil)
	var empty *fakeSource
	first := &fakeFactory{dir: "/a", build: func(orb.Point) Source {
		empty = newFake("void", 0, 0, 1, 1, 0, 10)
		empty.missFor.Store(1)
		return empty
	}}
	second := &fakeFactory{dir: "/b", build: func(orb.Point) Source {
		return newFake("solid", 0, 0, 1, 1, 7, 10)
	}}
	r.AddFactory(first)
	r.AddFactory(second)

	if h, ok := r.HeightAboveMSL(orb.Point{0.5, 0.5}); !ok || h != 7 {
		t.Fatalf("HeightAboveMSL = %g, %v, want 7", h, ok)
	}
	if empty.closes.Load() != 1 {
		t.Errorf("source without a height closed %d times, want 1", empty.closes.Load())
	}
	if diff := cmp.Diff([]string{"solid"}, r.OpenCells()); diff != "" {
		t.Errorf("OpenCells() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryFactoryDeduplication(t *testing.T) {
	r := NewRegistry(nil)
	existing := newFake("N00E000.hgt", 0, 0, 1, 1, 5, 30)
	existing.missFor.Store(1)
	r.AddSource(existing)

	var dup *fakeSource
	r.AddFactory(&fakeFactory{dir: "/srtm", build: func(orb.Point) Source {
		dup = newFake("N00E000.hgt", 0, 0, 1, 1, 99, 30)
		return dup
	}})

	h, ok := r.HeightAboveMSL(orb.Point{0.5, 0.5})
	if !ok || h != 5 {
		t.Fatalf("HeightAboveMSL = %g, %v, want existing source's 5", h, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, duplicate must not be registered", r.Len())
	}
	if dup.closes.Load() != 1 {
		t.Errorf("duplicate closed %d times, want 1", dup.closes.Load())
	}
}

func TestRegistryAccuracy(t *testing.T) {
	r := NewRegistry(nil)
	registered := newFake("N00E000.hgt", 0, 0, 1, 1, 5, 30)
	registered.ce, registered.le = 20, 16
	r.AddSource(registered)

	var transient *fakeSource
	r.AddFactory(&fakeFactory{dir: "/dted", build: func(pt orb.Point) Source {
		if pt[0] < 1 || pt[0] > 2 {
			return nil
		}
		transient = newFake("e001/n00.dt1", 1, 0, 2, 1, 7, 90)
		transient.ce, transient.le = 50, 30
		return transient
	}})

	tests := []struct {
		name           string
		pt             orb.Point
		wantCE, wantLE float64
		wantOK         bool
	}{
		{"registered", orb.Point{0.5, 0.5}, 20, 16, true},
		{"factory", orb.Point{1.5, 0.5}, 50, 30, true},
		{"uncovered", orb.Point{5, 5}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, le, ok := r.Accuracy(tt.pt)
			if ok != tt.wantOK || ce != tt.wantCE || le != tt.wantLE {
				t.Errorf("Accuracy(%v) = %g, %g, %v, want %g, %g, %v", tt.pt, ce, le, ok, tt.wantCE, tt.wantLE, tt.wantOK)
			}
		})
	}

	if transient == nil || transient.closes.Load() != 1 {
		t.Error("factory source was not closed after the accuracy lookup")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, accuracy lookups must not register sources", r.Len())
	}
}

func TestRegistryCloseCell(t *testing.T) {
	r := NewRegistry(nil)
	a := newFake("a", 0, 0, 1, 1, 1, 10)
	r.AddSource(a)
	r.AddSource(newFake("b", 0, 0, 1, 1, 2, 20))
	r.AddSource(newFake("a", 0, 0, 1, 1, 3, 30))

	if r.CloseCell("missing") {
		t.Error("CloseCell(missing) = true")
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d after failed close, want 3", r.Len())
	}

	if !r.CloseCell("a") {
		t.Fatal("CloseCell(a) = false")
	}
	if diff := cmp.Diff([]string{"b", "a"}, r.OpenCells()); diff != "" {
		t.Errorf("OpenCells() mismatch (-want +got):\n%s", diff)
	}
	if a.closes.Load() != 1 {
		t.Errorf("closed source Close() called %d times, want 1", a.closes.Load())
	}
	if !r.IsCellOpen("a") || r.IsCellOpen("missing") {
		t.Error("IsCellOpen() wrong after close")
	}
}

func TestRegistryMove(t *testing.T) {
	newReg := func() *Registry {
		r := NewRegistry(nil)
		r.SetAutoSort(false)
		for _, name := range []string{"a", "b", "c", "d"} {
			r.AddSource(newFake(name, 0, 0, 1, 1, 0, 10))
		}
		return r
	}

	tests := []struct {
		name   string
		move   func(*Registry) bool
		want   []string
		wantOK bool
	}{
		{"up one", func(r *Registry) bool { return r.MoveUpOne("c") }, []string{"a", "c", "b", "d"}, true},
		{"up one at top", func(r *Registry) bool { return r.MoveUpOne("a") }, []string{"a", "b", "c", "d"}, false},
		{"down one", func(r *Registry) bool { return r.MoveDownOne("b") }, []string{"a", "c", "b", "d"}, true},
		{"down one at bottom", func(r *Registry) bool { return r.MoveDownOne("d") }, []string{"a", "b", "c", "d"}, false},
		{"to top", func(r *Registry) bool { return r.MoveToTop("d") }, []string{"d", "a", "b", "c"}, true},
		{"to bottom", func(r *Registry) bool { return r.MoveToBottom("a") }, []string{"b", "c", "d", "a"}, true},
		{"missing", func(r *Registry) bool { return r.MoveToTop("z") }, []string{"a", "b", "c", "d"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReg()
			if got := tt.move(r); got != tt.wantOK {
				t.Errorf("move = %v, want %v", got, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, r.OpenCells()); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRegistryMinMax(t *testing.T) {
	r := NewRegistry(nil)
	if r.MinHeight() != bogusMin || r.MaxHeight() != bogusMax {
		t.Errorf("empty range = [%g, %g]", r.MinHeight(), r.MaxHeight())
	}

	a := newFake("a", 0, 0, 1, 1, 0, 10)
	a.min, a.max = -20, 300
	b := newFake("b", 0, 0, 1, 1, 0, 10)
	b.min, b.max = 5, 1200
	r.AddSource(a)
	r.AddSource(b)
	if r.MinHeight() != -20 || r.MaxHeight() != 1200 {
		t.Errorf("range = [%g, %g], want [-20, 1200]", r.MinHeight(), r.MaxHeight())
	}
}

func TestRegistryObserve(t *testing.T) {
	r := NewRegistry(nil)
	var events []Event
	r.Observe(func(ev Event) { events = append(events, ev) })

	r.AddSource(newFake("a", 0, 0, 1, 1, 0, 10))
	r.AddSource(newFake("b", 0, 0, 1, 1, 0, 20))
	r.MoveToTop("b")
	r.CloseCell("a")

	want := []Event{
		{Type: EventSourceAdded, Filename: "a"},
		{Type: EventSourceAdded, Filename: "b"},
		{Type: EventOrderChanged, Filename: "b"},
		{Type: EventSourceClosed, Filename: "a"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryConcurrentMisses(t *testing.T) {
	r := NewRegistry(nil)
	r.AddFactory(&fakeFactory{dir: "/srtm", build: func(orb.Point) Source {
		return newFake("cell", 0, 0, 1, 1, 42, 30)
	}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h, ok := r.HeightAboveMSL(orb.Point{0.5, 0.5}); !ok || h != 42 {
				t.Errorf("HeightAboveMSL = %g, %v, want 42", h, ok)
			}
		}()
	}
	wg.Wait()

	// Concurrent misses may register the same cell more than once.
	if n := r.Len(); n < 1 {
		t.Errorf("Len() = %d, want at least 1", n)
	}
	for _, name := range r.OpenCells() {
		if name != "cell" {
			t.Errorf("unexpected cell %q", name)
		}
	}
}
