package drivers

import (
	"sync"
	"testing"
)

func TestClaimExactlyOnce(t *testing.T) {
	d := &Driver{ID: "d1"}
	d.Release()

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- d.Claim()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 successful claim, got %d", won)
	}
	if d.IsAvailable() {
		t.Error("driver should not be available after a claim")
	}
}

func TestReleaseMakesDriverClaimableAgain(t *testing.T) {
	d := &Driver{ID: "d1"}
	d.Release()

	if !d.Claim() {
		t.Fatal("first claim should succeed")
	}
	if d.Claim() {
		t.Fatal("second claim without release should fail")
	}
	d.Release()
	if !d.Claim() {
		t.Fatal("claim after release should succeed")
	}
}

func TestRegistryReleaseUnknownID(t *testing.T) {
	r := NewRegistry()
	// Must not panic.
	r.Release("ghost")
}

func TestSnapshotReflectsLatestTelemetry(t *testing.T) {
	d := &Driver{ID: "d1", VehicleID: "v1"}
	d.SetLocation(Location{Lat: 55.7, Lng: 37.6, Epoch: 1700000000, Course: 90})

	snap := d.Snapshot()
	if snap.VehicleID != "v1" || snap.Lat != 55.7 || snap.Lng != 37.6 || snap.Course != 90 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}
