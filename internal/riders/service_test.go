package riders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatch-service/internal/dispatch"
	"dispatch-service/internal/drivers"
	"dispatch-service/internal/trips"
	"dispatch-service/pkg/jwt"
)

func init() {
	if err := jwt.Init("test-secret"); err != nil {
		panic(err)
	}
}

// --- fakes ---

type memStore struct {
	mu    sync.Mutex
	saves int
	fail  bool
}

func (m *memStore) Save(ctx context.Context, r *Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store down")
	}
	m.saves++
	return nil
}

type fakeDirectory struct {
	snapshots []drivers.Snapshot
	err       error
}

func (f *fakeDirectory) AllAvailableNear(ctx context.Context, lat, lng float64) ([]drivers.Snapshot, error) {
	return f.snapshots, f.err
}

type fakeCoordinator struct {
	trip *trips.Trip
	err  error

	calls int
}

func (f *fakeCoordinator) Dispatch(ctx context.Context, riderID string, lat, lng float64) (*trips.Trip, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.trip, nil
}

type fakeTripControl struct {
	canceled []string
	err      error
}

func (f *fakeTripControl) PickupCanceledByRider(ctx context.Context, t *trips.Trip) error {
	if f.err != nil {
		return f.err
	}
	f.canceled = append(f.canceled, t.ID)
	return nil
}

type fakeBiller struct {
	tripID   string
	rating   int
	feedback string
	err      error
	calls    int
}

func (f *fakeBiller) Rate(ctx context.Context, tripID string, rating int, feedback string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.tripID, f.rating, f.feedback = tripID, rating, feedback
	return nil
}

type fakeFence struct{ allowed bool }

func (f *fakeFence) IsLocationAllowed(lat, lng float64) bool { return f.allowed }

type fakeSchedule struct{ msg string }

func (f *fakeSchedule) SorryMessage(now time.Time) string { return f.msg }

type fakeReporter struct {
	mobileConfirm []string
	restricted    []string
	noCars        []bool // secondCheck flag per call
	sms           []string
}

func (f *fakeReporter) MobileConfirmationNeeded(riderID string) {
	f.mobileConfirm = append(f.mobileConfirm, riderID)
}
func (f *fakeReporter) RestrictedLocation(riderID string, lat, lng float64) {
	f.restricted = append(f.restricted, riderID)
}
func (f *fakeReporter) NoCarsAvailable(riderID string, secondCheck bool) {
	f.noCars = append(f.noCars, secondCheck)
}
func (f *fakeReporter) SMSTripStatus(riderID, tripID, status string) {
	f.sms = append(f.sms, status)
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []*StatusResponse
}

func (f *fakeTransport) Send(riderID string, msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if resp, ok := msg.(*StatusResponse); ok {
		f.sent = append(f.sent, resp)
	}
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) last() *StatusResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type harness struct {
	svc       *Service
	registry  *Registry
	store     *memStore
	directory *fakeDirectory
	coord     *fakeCoordinator
	tripCtl   *fakeTripControl
	biller    *fakeBiller
	fence     *fakeFence
	hours     *fakeSchedule
	reporter  *fakeReporter
	transport *fakeTransport
}

func newHarness() *harness {
	h := &harness{
		registry:  NewRegistry(),
		store:     &memStore{},
		directory: &fakeDirectory{},
		coord:     &fakeCoordinator{},
		tripCtl:   &fakeTripControl{},
		biller:    &fakeBiller{},
		fence:     &fakeFence{allowed: true},
		hours:     &fakeSchedule{msg: "sorry, all cabs are busy"},
		reporter:  &fakeReporter{},
		transport: &fakeTransport{},
	}
	h.svc = NewService(
		h.registry, h.store, h.directory, h.coord, h.tripCtl,
		h.biller, h.fence, h.hours, h.reporter, h.transport,
	)
	return h
}

func (h *harness) addRider(state State) *Rider {
	r := &Rider{
		ID:                 "rider-1",
		Name:               "Ada",
		Email:              "ada@example.com",
		State:              state,
		Connected:          true,
		HasConfirmedMobile: true,
	}
	if state != StateLooking {
		r.Trip = &trips.Trip{ID: "trip-1", RiderID: r.ID, DriverID: strPtr("drv-1")}
	}
	h.registry.Put(r)
	return r
}

func strPtr(s string) *string { return &s }

func onlineDriver(id string) *drivers.Driver {
	d := &drivers.Driver{ID: id, VehicleID: id + "-vehicle"}
	d.SetLocation(drivers.Location{Lat: 55.75, Lng: 37.61, Epoch: 100})
	return d
}

// checkInvariant fails the test when the trip binding disagrees with the
// rider's state.
func checkInvariant(t *testing.T, r *Rider) {
	t.Helper()
	hasTrip := r.Trip != nil
	needsTrip := r.State != StateLooking
	if hasTrip != needsTrip {
		t.Fatalf("state %s with trip=%v violates the trip binding rule", r.State, hasTrip)
	}
}

// --- tests ---

func TestLoginReturnsTokenAndNearbyVehicles(t *testing.T) {
	h := newHarness()
	h.addRider(StateLooking)
	h.directory.snapshots = []drivers.Snapshot{
		{VehicleID: "v1", Lat: 55.7, Lng: 37.6, Epoch: 50},
		{VehicleID: "v2", Lat: 55.8, Lng: 37.7, Epoch: 60},
	}

	resp, err := h.svc.Login(context.Background(), "rider-1", Request{Lat: 55.75, Lng: 37.61})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login response missing token")
	}
	if len(resp.Vehicles) != 2 {
		t.Fatalf("want 2 nearby vehicles, got %d", len(resp.Vehicles))
	}
	if h.store.saves != 1 {
		t.Fatalf("login should persist once, saved %d times", h.store.saves)
	}
}

func TestPingOmitsTokenAndDoesNotPersist(t *testing.T) {
	h := newHarness()
	h.addRider(StateLooking)

	resp, err := h.svc.Ping(context.Background(), "rider-1", Request{Lat: 1, Lng: 2})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if resp.Token != "" {
		t.Fatal("ping must not mint a token")
	}
	if h.store.saves != 0 {
		t.Fatal("ping must not persist")
	}
	r := h.registry.Get("rider-1")
	if r.Location.Lat != 1 || r.Location.Lng != 2 {
		t.Fatal("ping should refresh the rider location")
	}
}

func TestUnknownRider(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.Ping(context.Background(), "ghost", Request{}); !errors.Is(err, ErrUnknownRider) {
		t.Fatalf("want ErrUnknownRider, got %v", err)
	}
}

func TestPickupSuccessTransitionsToDispatching(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)
	trip := &trips.Trip{ID: "trip-9", RiderID: r.ID, Driver: onlineDriver("drv-9")}
	h.coord.trip = trip

	resp, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{PickupLat: 55.75, PickupLng: 37.61})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if resp.State != "DISPATCHING" {
		t.Fatalf("want DISPATCHING, got %s", resp.State)
	}
	if r.Trip != trip {
		t.Fatal("trip not bound to rider")
	}
	checkInvariant(t, r)
	if h.store.saves != 1 {
		t.Fatalf("transition should persist once, saved %d times", h.store.saves)
	}
}

func TestPickupOutsideLookingIsNoOp(t *testing.T) {
	for _, state := range []State{StateDispatching, StateWaitingForPickup, StateOnTrip, StatePendingRating} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness()
			r := h.addRider(state)

			resp, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{})
			if err != nil {
				t.Fatalf("pickup: %v", err)
			}
			if resp.State != state.String() {
				t.Fatalf("state changed from %s to %s", state, resp.State)
			}
			if h.coord.calls != 0 {
				t.Fatal("no dispatch may run outside LOOKING")
			}
			checkInvariant(t, r)
		})
	}
}

func TestPickupUnconfirmedMobile(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)
	r.HasConfirmedMobile = false

	resp, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("want LOOKING, got %s", resp.State)
	}
	if len(h.reporter.mobileConfirm) != 1 {
		t.Fatal("mobile confirmation notice not reported")
	}
	if h.coord.calls != 0 {
		t.Fatal("dispatch must not run for an unconfirmed mobile")
	}
}

func TestPickupRestrictedLocation(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)
	h.fence.allowed = false

	resp, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{PickupLat: 10, PickupLng: 10})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if resp.SorryMsg != msgRestrictedArea {
		t.Fatalf("want restricted-area copy, got %q", resp.SorryMsg)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("rider must stay LOOKING, got %s", resp.State)
	}
	if len(h.reporter.restricted) != 1 {
		t.Fatal("restricted location not reported")
	}
	if h.coord.calls != 0 {
		t.Fatal("dispatch must not run for a restricted location")
	}
}

func TestPickupNoCarsUsesScheduleCopy(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)
	h.coord.err = dispatch.ErrNoneNearby
	h.hours.msg = "we are closed until Monday 8:00"

	resp, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if resp.SorryMsg != "we are closed until Monday 8:00" {
		t.Fatalf("want schedule copy, got %q", resp.SorryMsg)
	}
	if len(h.reporter.noCars) != 1 || h.reporter.noCars[0] {
		t.Fatalf("want one no-cars report with secondCheck=false, got %v", h.reporter.noCars)
	}
	checkInvariant(t, r)
}

func TestPickupAllClaimedReportsSecondCheck(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)
	h.coord.err = dispatch.ErrAllClaimed

	resp, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	if resp.SorryMsg == "" {
		t.Fatal("losing the claim race still owes the rider an apology")
	}
	if len(h.reporter.noCars) != 1 || !h.reporter.noCars[0] {
		t.Fatalf("want one no-cars report with secondCheck=true, got %v", h.reporter.noCars)
	}
	if r.State != StateLooking {
		t.Fatalf("rider must stay LOOKING, got %s", r.State)
	}
}

func TestPickupPersistFailureRollsBack(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)
	trip := &trips.Trip{ID: "trip-9", RiderID: r.ID}
	h.coord.trip = trip
	h.store.fail = true

	if _, err := h.svc.Pickup(context.Background(), r.ID, PickupRequest{}); err == nil {
		t.Fatal("want error when the store is down")
	}
	if r.State != StateLooking || r.Trip != nil {
		t.Fatalf("failed persist must revert: state %s, trip %v", r.State, r.Trip)
	}
	if len(h.tripCtl.canceled) != 1 || h.tripCtl.canceled[0] != "trip-9" {
		t.Fatalf("orphaned trip not unwound: %v", h.tripCtl.canceled)
	}
	checkInvariant(t, r)
}

func TestCancelPickupWhileDispatching(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateDispatching)

	resp, err := h.svc.CancelPickup(context.Background(), r.ID, Request{})
	if err != nil {
		t.Fatalf("cancel pickup: %v", err)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("want LOOKING, got %s", resp.State)
	}
	if len(h.tripCtl.canceled) != 1 {
		t.Fatal("trip teardown not invoked")
	}
	checkInvariant(t, r)
}

func TestCancelPickupWhileLookingIsNoOp(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)

	resp, err := h.svc.CancelPickup(context.Background(), r.ID, Request{})
	if err != nil {
		t.Fatalf("cancel pickup: %v", err)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("want LOOKING, got %s", resp.State)
	}
	if len(h.tripCtl.canceled) != 0 {
		t.Fatal("nothing to tear down in LOOKING")
	}
	checkInvariant(t, r)
}

func TestCancelTripOnlyWhileWaiting(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateWaitingForPickup)

	resp, err := h.svc.CancelTrip(context.Background(), r.ID, Request{})
	if err != nil {
		t.Fatalf("cancel trip: %v", err)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("want LOOKING, got %s", resp.State)
	}
	checkInvariant(t, r)

	// On trip the same call changes nothing.
	h2 := newHarness()
	r2 := h2.addRider(StateOnTrip)
	resp2, err := h2.svc.CancelTrip(context.Background(), r2.ID, Request{})
	if err != nil {
		t.Fatalf("cancel trip: %v", err)
	}
	if resp2.State != "ON_TRIP" {
		t.Fatalf("ON_TRIP rider must not be moved, got %s", resp2.State)
	}
	checkInvariant(t, r2)
}

func TestRateDriverCompletesAndReturnsToLooking(t *testing.T) {
	h := newHarness()
	r := h.addRider(StatePendingRating)

	resp, err := h.svc.RateDriver(context.Background(), r.ID, RateRequest{Rating: 5, Feedback: "smooth ride"})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if h.biller.tripID != "trip-1" || h.biller.rating != 5 || h.biller.feedback != "smooth ride" {
		t.Fatalf("billing got (%s, %d, %q)", h.biller.tripID, h.biller.rating, h.biller.feedback)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("want LOOKING after rating, got %s", resp.State)
	}
	checkInvariant(t, r)
}

func TestRateDriverBillingFailureKeepsPendingRating(t *testing.T) {
	h := newHarness()
	r := h.addRider(StatePendingRating)
	h.biller.err = errors.New("billing down")

	if _, err := h.svc.RateDriver(context.Background(), r.ID, RateRequest{Rating: 4}); err == nil {
		t.Fatal("want error when billing fails")
	}
	if r.State != StatePendingRating || r.Trip == nil {
		t.Fatalf("rider must stay PENDING_RATING with trip, got %s", r.State)
	}
	checkInvariant(t, r)
}

func TestRateDriverOutsidePendingRatingIsNoOp(t *testing.T) {
	h := newHarness()
	r := h.addRider(StateLooking)

	resp, err := h.svc.RateDriver(context.Background(), r.ID, RateRequest{Rating: 3})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if resp.State != "LOOKING" {
		t.Fatalf("want LOOKING, got %s", resp.State)
	}
	if h.biller.calls != 0 {
		t.Fatal("billing must not run outside PENDING_RATING")
	}
}

func TestBroadcastNearbySkipsDisconnectedAndNonLooking(t *testing.T) {
	h := newHarness()
	looking := h.addRider(StateLooking)

	busy := &Rider{ID: "rider-2", State: StateOnTrip, Connected: true,
		Trip: &trips.Trip{ID: "t2", Driver: onlineDriver("d2")}}
	h.registry.Put(busy)
	offline := &Rider{ID: "rider-3", State: StateLooking, Connected: false}
	h.registry.Put(offline)

	h.svc.BroadcastAllNearby(context.Background())

	if h.transport.count() != 1 {
		t.Fatalf("only the connected LOOKING rider gets the broadcast, sent %d", h.transport.count())
	}
	if h.transport.last().RiderID != looking.ID {
		t.Fatalf("broadcast went to %s", h.transport.last().RiderID)
	}
}
