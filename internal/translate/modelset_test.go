package translate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeInstaller struct {
	mu         sync.Mutex
	installed  map[Pair]bool
	available  []Package
	indexErr   error
	installErr map[Pair]error

	indexCalls   atomic.Int32
	installCalls map[Pair]int
}

func newFakeInstaller(available ...Package) *fakeInstaller {
	return &fakeInstaller{
		installed:    make(map[Pair]bool),
		available:    available,
		installErr:   make(map[Pair]error),
		installCalls: make(map[Pair]int),
	}
}

func (f *fakeInstaller) Installed(_ context.Context, p Pair) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[p], nil
}

func (f *fakeInstaller) Available(context.Context) ([]Package, error) {
	f.indexCalls.Add(1)
	return f.available, f.indexErr
}

func (f *fakeInstaller) Install(_ context.Context, pkg Package) error {
	p := Pair{From: pkg.From, To: pkg.To}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installCalls[p]++
	if err := f.installErr[p]; err != nil {
		return err
	}
	f.installed[p] = true
	return nil
}

func pkg(from, to string) Package {
	return Package{Type: "translate", From: from, To: to, Version: "1.0", Links: []string{"http://example/" + from + to}}
}

func TestPairs(t *testing.T) {
	got := Pairs([]string{"uk", "ru", "en", ""}, "en")
	want := []Pair{{"uk", "en"}, {"ru", "en"}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestModelSet_InstallsMissingOnce(t *testing.T) {
	inst := newFakeInstaller(pkg("uk", "en"), pkg("ru", "en"))
	ms := NewModelSet(inst, Pairs([]string{"uk", "ru"}, "en"), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ms.Ensure(context.Background())
		}()
	}
	wg.Wait()
	ms.Ensure(context.Background())

	for _, p := range []Pair{{"uk", "en"}, {"ru", "en"}} {
		if n := inst.installCalls[p]; n != 1 {
			t.Errorf("%s installed %d times, want 1", p, n)
		}
		if !ms.Has(p) {
			t.Errorf("expected %s to be ready", p)
		}
	}
	if n := inst.indexCalls.Load(); n != 1 {
		t.Errorf("index fetched %d times, want 1", n)
	}
}

func TestModelSet_HasBeforeAndDuringEnsure(t *testing.T) {
	inst := newFakeInstaller(pkg("uk", "en"))
	ms := NewModelSet(inst, []Pair{{"uk", "en"}}, testLogger())

	if ms.Has(Pair{"uk", "en"}) {
		t.Fatal("Has should report false before Ensure")
	}
	if inst.indexCalls.Load() != 0 {
		t.Fatal("Has must not trigger installation")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ms.Ensure(context.Background())
		}()
		go func() {
			defer wg.Done()
			ms.Has(Pair{"uk", "en"})
		}()
	}
	wg.Wait()

	if !ms.Has(Pair{"uk", "en"}) {
		t.Fatal("expected uk->en ready after Ensure")
	}
	if ms.Has(Pair{"ru", "en"}) {
		t.Fatal("unconfigured pair reported ready")
	}
}

func TestModelSet_AllInstalledSkipsIndex(t *testing.T) {
	inst := newFakeInstaller()
	inst.installed[Pair{"uk", "en"}] = true
	ms := NewModelSet(inst, []Pair{{"uk", "en"}}, testLogger())

	ready := ms.Ensure(context.Background())
	if len(ready) != 1 {
		t.Fatalf("expected 1 ready pair, got %v", ready)
	}
	if inst.indexCalls.Load() != 0 {
		t.Error("index should not be fetched when everything is installed")
	}
}

func TestModelSet_MissingPackageSkipped(t *testing.T) {
	inst := newFakeInstaller(pkg("uk", "en"))
	ms := NewModelSet(inst, Pairs([]string{"uk", "xx"}, "en"), testLogger())

	ready := ms.Ensure(context.Background())
	if len(ready) != 1 || ready[0] != (Pair{"uk", "en"}) {
		t.Errorf("expected only uk->en, got %v", ready)
	}
	if ms.Has(Pair{"xx", "en"}) {
		t.Error("xx->en should not be ready")
	}
}

func TestModelSet_IndexFailureKeepsInstalled(t *testing.T) {
	inst := newFakeInstaller()
	inst.indexErr = errors.New("offline")
	inst.installed[Pair{"ru", "en"}] = true
	ms := NewModelSet(inst, Pairs([]string{"uk", "ru"}, "en"), testLogger())

	ready := ms.Ensure(context.Background())
	if len(ready) != 1 || ready[0] != (Pair{"ru", "en"}) {
		t.Errorf("expected only ru->en, got %v", ready)
	}
}

func TestModelSet_InstallFailureSkipsPair(t *testing.T) {
	inst := newFakeInstaller(pkg("uk", "en"), pkg("ru", "en"))
	inst.installErr[Pair{"uk", "en"}] = errors.New("disk full")
	ms := NewModelSet(inst, Pairs([]string{"uk", "ru"}, "en"), testLogger())

	ready := ms.Ensure(context.Background())
	if len(ready) != 1 || ready[0] != (Pair{"ru", "en"}) {
		t.Errorf("expected only ru->en, got %v", ready)
	}
}

func TestModelSet_CancelledCallerStillInitializes(t *testing.T) {
	inst := newFakeInstaller(pkg("uk", "en"))
	ms := NewModelSet(inst, []Pair{{"uk", "en"}}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ms.Ensure(ctx)

	if !ms.Has(Pair{"uk", "en"}) {
		t.Error("expected uk->en installed despite cancelled caller")
	}
}

func TestFindPackage_Unsupported(t *testing.T) {
	_, err := findPackage([]Package{pkg("uk", "en")}, Pair{"ja", "en"})
	if !errors.Is(err, ErrUnsupportedPair) {
		t.Errorf("expected ErrUnsupportedPair, got %v", err)
	}
}
