package lockmap_test

import (
	"sync"
	"testing"

	"fbuild/internal/lockmap"
)

func TestTryAcquireExclusive(t *testing.T) {
	reg := lockmap.NewRegistry()
	key := lockmap.ProjectKey("/home/dev/blink")

	if !reg.TryAcquire(key) {
		t.Fatal("first acquisition should succeed")
	}
	if reg.TryAcquire(key) {
		t.Fatal("second acquisition should fail while held")
	}
	reg.Release(key)
	if !reg.TryAcquire(key) {
		t.Fatal("acquisition should succeed after release")
	}
	reg.Release(key)
}

func TestDistinctResourcesIndependent(t *testing.T) {
	reg := lockmap.NewRegistry()
	if !reg.TryAcquire(lockmap.ProjectKey("/a")) {
		t.Fatal("project /a should lock")
	}
	if !reg.TryAcquire(lockmap.ProjectKey("/b")) {
		t.Fatal("project /b should lock independently")
	}
	if !reg.TryAcquire(lockmap.PortKey("/dev/ttyUSB0")) {
		t.Fatal("port lock should be independent of project locks")
	}
}

func TestProjectAndPortKeysDoNotCollide(t *testing.T) {
	reg := lockmap.NewRegistry()
	if !reg.TryAcquire(lockmap.ProjectKey("x")) {
		t.Fatal("project key should lock")
	}
	if !reg.TryAcquire(lockmap.PortKey("x")) {
		t.Fatal("port key with same identity should be a distinct lock")
	}
}

func TestConcurrentAcquisitionSingleWinner(t *testing.T) {
	reg := lockmap.NewRegistry()
	key := lockmap.PortKey("/dev/ttyACM0")

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.TryAcquire(key) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestKeyResourceDescription(t *testing.T) {
	if got := lockmap.ProjectKey("/home/dev/blink").Resource(); got != "project /home/dev/blink" {
		t.Fatalf("unexpected description: %s", got)
	}
	if got := lockmap.PortKey("COM3").Resource(); got != "port COM3" {
		t.Fatalf("unexpected description: %s", got)
	}
}

func TestActiveOperationCounter(t *testing.T) {
	reg := lockmap.NewRegistry()
	if reg.ActiveOperations() != 0 {
		t.Fatal("expected zero active operations")
	}
	reg.BeginOperation()
	reg.BeginOperation()
	if reg.ActiveOperations() != 2 {
		t.Fatalf("expected 2 active, got %d", reg.ActiveOperations())
	}
	reg.EndOperation()
	if reg.ActiveOperations() != 1 {
		t.Fatalf("expected 1 active, got %d", reg.ActiveOperations())
	}
	reg.EndOperation()
	if reg.ActiveOperations() != 0 {
		t.Fatalf("expected 0 active, got %d", reg.ActiveOperations())
	}
}
