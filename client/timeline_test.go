// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/paseo-dev/paseo/lib/clock"
	"github.com/paseo-dev/paseo/lib/testutil"
	"github.com/paseo-dev/paseo/lib/timeline"
	"github.com/paseo-dev/paseo/lib/timelinesync"
)

const waitTimeout = 5 * time.Second

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// recorder captures the requests a controller sends.
type recorder struct {
	requests chan timeline.FetchRequest
	err      error
}

func newRecorder() *recorder {
	return &recorder{requests: make(chan timeline.FetchRequest, 16)}
}

func (r *recorder) send(request timeline.FetchRequest) error {
	if r.err != nil {
		return r.err
	}
	r.requests <- request
	return nil
}

func (r *recorder) next(t *testing.T) timeline.FetchRequest {
	t.Helper()
	return testutil.RequireReceive(t, r.requests, waitTimeout, "request")
}

func (r *recorder) requireIdle(t *testing.T) {
	t.Helper()
	select {
	case request := <-r.requests:
		t.Fatalf("unexpected request %+v", request)
	default:
	}
}

func newController(t *testing.T) (*Timeline, *recorder) {
	t.Helper()
	requests := newRecorder()
	controller := NewTimeline(TimelineConfig{
		ServerID: "laptop",
		AgentID:  "agent",
		Send:     requests.send,
		Clock:    clock.Fake(testEpoch),
	})
	return controller, requests
}

func fakeClock(controller *Timeline) *clock.FakeClock {
	return controller.clock.(*clock.FakeClock)
}

func rows(epoch string, first, last int64) []timeline.Entry {
	var entries []timeline.Entry
	for seq := first; seq <= last; seq++ {
		entries = append(entries, timeline.Entry{
			Seq:       seq,
			Item:      timeline.Item{Type: timeline.ItemUserMessage, Text: "row"},
			Timestamp: testEpoch.Add(time.Duration(seq) * time.Second),
		})
	}
	return entries
}

func response(direction timeline.Direction, epoch string, first, last int64) timeline.TimelineResponse {
	payload := timeline.TimelineResponse{
		AgentID:   "agent",
		Direction: direction,
		Epoch:     epoch,
		Entries:   rows(epoch, first, last),
	}
	if first <= last {
		payload.StartCursor = &timeline.SeqCursor{Epoch: epoch, Seq: first}
		payload.EndCursor = &timeline.SeqCursor{Epoch: epoch, Seq: last}
	}
	return payload
}

func liveRow(epoch string, seq int64) timeline.AgentStreamMessage {
	return timeline.AgentStreamMessage{
		AgentID: "agent",
		Event: timeline.StreamEvent{
			Type: timeline.StreamTimeline,
			Item: &timeline.Item{Type: timeline.ItemAssistantMessage, Text: "live"},
		},
		Seq:       &seq,
		Epoch:     epoch,
		Timestamp: testEpoch.Add(time.Duration(seq) * time.Second),
	}
}

func rowSeqs(entries []timeline.Entry) []int64 {
	var seqs []int64
	for _, entry := range entries {
		seqs = append(seqs, entry.Seq)
	}
	return seqs
}

// bootstrap starts Bootstrap in the background and returns the request
// it sent and a channel with its result.
func bootstrap(t *testing.T, controller *Timeline, requests *recorder, ctx context.Context) (timeline.FetchRequest, <-chan error) {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- controller.Bootstrap(ctx, 3) }()
	return requests.next(t), result
}

func TestBootstrapResolvesOnTail(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)

	request, result := bootstrap(t, controller, requests, context.Background())
	if request.Direction != timeline.DirectionTail || request.Limit != 3 || request.Cursor != nil {
		t.Errorf("bootstrap request: got %+v", request)
	}

	controller.HandleResponse(response(timeline.DirectionTail, "e1", 4, 6))
	if err := testutil.RequireReceive(t, result, waitTimeout, "bootstrap"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{4, 5, 6}) {
		t.Errorf("rows: got %v, want [4 5 6]", got)
	}
	if cursor := controller.Cursor(); cursor == nil || *cursor != (timeline.Cursor{Epoch: "e1", StartSeq: 4, EndSeq: 6}) {
		t.Errorf("cursor: got %+v", cursor)
	}
	testutil.RequireReceive(t, controller.Updates(), waitTimeout, "update")
	requests.requireIdle(t)
}

// Live rows that arrive while the bootstrap request is in flight are
// discarded by the replacing tail response and fetched again from its
// end cursor.
func TestBootstrapRaceCatchesUp(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)

	_, result := bootstrap(t, controller, requests, context.Background())
	controller.HandleStream(liveRow("e1", 101))
	controller.HandleStream(liveRow("e1", 102))
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{101, 102}) {
		t.Fatalf("rows before the response: got %v", got)
	}

	controller.HandleResponse(response(timeline.DirectionTail, "e1", 98, 100))
	if err := testutil.RequireReceive(t, result, waitTimeout, "bootstrap"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{98, 99, 100}) {
		t.Errorf("rows after the response: got %v", got)
	}

	catchUp := requests.next(t)
	if catchUp.Direction != timeline.DirectionAfter || catchUp.Cursor == nil || *catchUp.Cursor != (timeline.SeqCursor{Epoch: "e1", Seq: 100}) {
		t.Fatalf("catch-up request: got %+v", catchUp)
	}
	controller.HandleResponse(response(timeline.DirectionAfter, "e1", 101, 102))
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{98, 99, 100, 101, 102}) {
		t.Errorf("rows after catching up: got %v", got)
	}
}

func TestBootstrapRejectedByErrorResponse(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)

	_, result := bootstrap(t, controller, requests, context.Background())
	err := controller.HandleResponse(timeline.FailedResponse("agent", timeline.DirectionTail, "unknown agent"))
	if !errors.Is(err, timelinesync.ErrResponseFailed) {
		t.Errorf("HandleResponse: got %v", err)
	}
	if err := testutil.RequireReceive(t, result, waitTimeout, "bootstrap"); !errors.Is(err, timelinesync.ErrResponseFailed) {
		t.Errorf("Bootstrap: got %v, want ErrResponseFailed", err)
	}
	if rows := controller.Rows(); len(rows) != 0 {
		t.Errorf("rows: got %d", len(rows))
	}
}

func TestBootstrapSupersededAndCanceled(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)

	_, first := bootstrap(t, controller, requests, context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	_, second := bootstrap(t, controller, requests, ctx)

	if err := testutil.RequireReceive(t, first, waitTimeout, "first bootstrap"); !errors.Is(err, timelinesync.ErrInitSuperseded) {
		t.Errorf("first Bootstrap: got %v, want ErrInitSuperseded", err)
	}
	cancel()
	if err := testutil.RequireReceive(t, second, waitTimeout, "second bootstrap"); !errors.Is(err, context.Canceled) {
		t.Errorf("second Bootstrap: got %v, want context.Canceled", err)
	}
	if controller.registry.Len() != 0 {
		t.Errorf("registry holds %d waits", controller.registry.Len())
	}
}

func TestBootstrapSendFailure(t *testing.T) {
	t.Parallel()
	requests := newRecorder()
	requests.err = errors.New("queue full")
	controller := NewTimeline(TimelineConfig{AgentID: "agent", Send: requests.send})

	if err := controller.Bootstrap(context.Background(), 10); err == nil {
		t.Fatal("Bootstrap succeeded without sending")
	}
	if controller.registry.Len() != 0 {
		t.Errorf("registry holds %d waits", controller.registry.Len())
	}
}

func TestStreamGapRequestsCatchUp(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)
	controller.HandleResponse(response(timeline.DirectionTail, "e1", 1, 3))

	controller.HandleStream(liveRow("e1", 4))
	controller.HandleStream(liveRow("e1", 6))
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{1, 2, 3, 4}) {
		t.Errorf("rows: got %v, want [1 2 3 4]", got)
	}
	catchUp := requests.next(t)
	if catchUp.Direction != timeline.DirectionAfter || *catchUp.Cursor != (timeline.SeqCursor{Epoch: "e1", Seq: 4}) {
		t.Errorf("catch-up: got %+v", catchUp)
	}

	// Stale and foreign-epoch rows change nothing.
	controller.HandleStream(liveRow("e1", 2))
	controller.HandleStream(liveRow("e0", 5))
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{1, 2, 3, 4}) {
		t.Errorf("rows: got %v, want [1 2 3 4]", got)
	}
	requests.requireIdle(t)
}

func TestTurnEventsTrackAgentStatus(t *testing.T) {
	t.Parallel()
	controller, _ := newController(t)

	controller.HandleStream(timeline.AgentStreamMessage{AgentID: "agent", Event: timeline.StreamEvent{Type: timeline.StreamTurnCompleted}, Timestamp: testEpoch})
	if status := controller.Agent().Status; status != timelinesync.AgentInitializing {
		t.Errorf("completion before a start: got %s", status)
	}

	controller.HandleStream(timeline.AgentStreamMessage{AgentID: "agent", Event: timeline.StreamEvent{Type: timeline.StreamTurnStarted}, Timestamp: testEpoch})
	if status := controller.Agent().Status; status != timelinesync.AgentRunning {
		t.Errorf("after turn_started: got %s", status)
	}

	later := testEpoch.Add(time.Minute)
	fakeClock(controller).Advance(time.Minute)
	controller.HandleStream(timeline.AgentStreamMessage{AgentID: "agent", Event: timeline.StreamEvent{Type: timeline.StreamTurnFailed, Error: "rate limited"}, Timestamp: later})
	agent := controller.Agent()
	if agent.Status != timelinesync.AgentError || !agent.UpdatedAt.Equal(later) {
		t.Errorf("after turn_failed: got %+v", agent)
	}
	testutil.RequireReceive(t, controller.Updates(), waitTimeout, "update")
}

func TestLoadOlderPrepends(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)

	if err := controller.LoadOlder(10); err != nil {
		t.Fatal(err)
	}
	requests.requireIdle(t)

	controller.HandleResponse(response(timeline.DirectionTail, "e1", 5, 7))
	if err := controller.LoadOlder(10); err != nil {
		t.Fatal(err)
	}
	older := requests.next(t)
	if older.Direction != timeline.DirectionBefore || *older.Cursor != (timeline.SeqCursor{Epoch: "e1", Seq: 5}) {
		t.Fatalf("older request: got %+v", older)
	}

	controller.HandleResponse(response(timeline.DirectionBefore, "e1", 2, 4))
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{2, 3, 4, 5, 6, 7}) {
		t.Errorf("rows: got %v", got)
	}
	if projected := controller.Project(timeline.ModeProjected); len(projected) != 6 {
		t.Errorf("projected entries: got %d, want 6", len(projected))
	}
}

func TestAgentTimesNeverMoveBackward(t *testing.T) {
	t.Parallel()
	controller, _ := newController(t)
	started := testEpoch.Add(100 * time.Second)
	fakeClock(controller).Advance(100 * time.Second)

	controller.HandleStream(timeline.AgentStreamMessage{AgentID: "agent", Event: timeline.StreamEvent{Type: timeline.StreamTurnStarted}, Timestamp: started})
	// Accepted, but stamped before the turn started.
	controller.HandleStream(liveRow("e1", 5))
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{5}) {
		t.Fatalf("rows: got %v, want [5]", got)
	}

	agent := controller.Agent()
	if agent.LastActivityAt.Before(started) {
		t.Errorf("LastActivityAt: got %v, want >= %v", agent.LastActivityAt, started)
	}
	if agent.UpdatedAt.Before(started) {
		t.Errorf("UpdatedAt: got %v, want >= %v", agent.UpdatedAt, started)
	}

	controller.HandleStream(liveRow("e1", 200))
	if got := controller.Agent().LastActivityAt; !got.Equal(started) {
		t.Errorf("LastActivityAt after a gapped row: got %v, want %v", got, started)
	}
	controller.HandleStream(liveRow("e1", 6))
	if got := controller.Agent().LastActivityAt; !got.Equal(started) {
		t.Errorf("LastActivityAt after an older row: got %v, want %v", got, started)
	}
}

// A gap wider than one catch-up window is closed by repeated after
// requests, each starting where the previous response ended.
func TestCatchUpFollowsLargeGap(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)
	controller.HandleResponse(response(timeline.DirectionTail, "e1", 1, 10))

	controller.HandleStream(liveRow("e1", 200))
	windows := [][2]int64{{11, 60}, {61, 110}, {111, 160}, {161, 200}}
	for _, window := range windows {
		catchUp := requests.next(t)
		if catchUp.Direction != timeline.DirectionAfter || *catchUp.Cursor != (timeline.SeqCursor{Epoch: "e1", Seq: window[0] - 1}) {
			t.Fatalf("catch-up before %d: got %+v", window[0], catchUp)
		}
		controller.HandleResponse(response(timeline.DirectionAfter, "e1", window[0], window[1]))
	}
	requests.requireIdle(t)

	if cursor := controller.Cursor(); cursor == nil || *cursor != (timeline.Cursor{Epoch: "e1", StartSeq: 1, EndSeq: 200}) {
		t.Errorf("cursor: got %+v", cursor)
	}
	if got := len(controller.Rows()); got != 200 {
		t.Errorf("rows: got %d, want 200", got)
	}
}

func TestCatchUpStopsWithoutProgress(t *testing.T) {
	t.Parallel()
	controller, requests := newController(t)
	controller.HandleResponse(response(timeline.DirectionTail, "e1", 1, 10))

	controller.HandleStream(liveRow("e1", 200))
	requests.next(t)
	controller.HandleResponse(response(timeline.DirectionAfter, "e1", 11, 60))
	requests.next(t)

	// A repeated window advances nothing, so no further request is sent.
	controller.HandleResponse(response(timeline.DirectionAfter, "e1", 11, 60))
	requests.requireIdle(t)
	if controller.catchUpTarget != nil {
		t.Errorf("catch-up target: got %+v, want nil", controller.catchUpTarget)
	}
}

// A response in another direction that lands while the bootstrap is in
// flight is merged, and the tail response still replaces.
func TestBootstrapKeepsWaitingThroughOtherResponses(t *testing.T) {
	t.Parallel()
	requests := newRecorder()
	var controller *Timeline
	send := func(request timeline.FetchRequest) error {
		if request.Direction == timeline.DirectionTail {
			if _, ok := controller.registry.Active(controller.key); !ok {
				t.Error("bootstrap request sent before its wait was registered")
			}
			controller.HandleResponse(response(timeline.DirectionAfter, "e1", 1, 2))
		}
		return requests.send(request)
	}
	controller = NewTimeline(TimelineConfig{AgentID: "agent", Send: send, Clock: clock.Fake(testEpoch)})

	_, result := bootstrap(t, controller, requests, context.Background())
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("rows before the tail response: got %v, want [1 2]", got)
	}

	controller.HandleResponse(response(timeline.DirectionTail, "e1", 7, 9))
	if err := testutil.RequireReceive(t, result, waitTimeout, "bootstrap"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if got := rowSeqs(controller.Rows()); !slices.Equal(got, []int64{7, 8, 9}) {
		t.Errorf("rows after the tail response: got %v, want [7 8 9]", got)
	}
}
