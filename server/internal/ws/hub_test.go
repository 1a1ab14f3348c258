package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/repairstack/pkg/compute"
	"github.com/obsidianstack/repairstack/pkg/types"
	"github.com/obsidianstack/repairstack/server/internal/api"
	"github.com/obsidianstack/repairstack/server/internal/store"
	wsHub "github.com/obsidianstack/repairstack/server/internal/ws"
)

// --- helpers ----------------------------------------------------------------

func newStore(recs ...*store.Record) *store.Store {
	st := store.New(5*time.Minute, 100)
	for _, r := range recs {
		st.Put(r)
	}
	return st
}

func record(id, scenario, kind string) *store.Record {
	p := types.Parameters{
		FailureRate: 0.01,
		RepairRate:  0.1,
		Standby:     types.Warm,
		Components:  5,
		Required:    3,
		RepairCrew:  2,
	}
	return &store.Record{
		ID:         id,
		Kind:       kind,
		Scenario:   scenario,
		Parameters: p,
		Evaluation: &compute.Evaluation{Parameters: p, Availability: 0.99},
	}
}

// response converts rec to the form the API publishes.
func response(rec *store.Record) api.RecordResponse {
	return api.BuildEvaluations(newStore(rec))[0]
}

type message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type recordJSON struct {
	ID          string            `json:"id"`
	Scenario    string            `json:"scenario"`
	Kind        string            `json:"kind"`
	Diagnostics []json.RawMessage `json:"diagnostics"`
}

func startHub(t *testing.T, st *store.Store) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []recordJSON {
	t.Helper()
	m := read(t, conn)
	if m.Event != wsHub.EventSnapshot {
		t.Fatalf("event: got %q, want snapshot", m.Event)
	}
	var recs []recordJSON
	if err := json.Unmarshal(m.Data, &recs); err != nil {
		t.Fatalf("snapshot data %s: %v", m.Data, err)
	}
	if recs == nil {
		t.Fatal("snapshot data is null, want a list")
	}
	return recs
}

func readEvaluation(t *testing.T, conn *websocket.Conn) recordJSON {
	t.Helper()
	m := read(t, conn)
	if m.Event != wsHub.EventEvaluation {
		t.Fatalf("event: got %q, want evaluation", m.Event)
	}
	var rec recordJSON
	if err := json.Unmarshal(m.Data, &rec); err != nil {
		t.Fatalf("evaluation data %s: %v", m.Data, err)
	}
	return rec
}

func ids(recs []recordJSON) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count: got %d, want %d", hub.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ------------------------------------------------------------------

func TestHub_SnapshotOnConnect(t *testing.T) {
	st := newStore(
		record("old", "plant", store.KindAvailability),
		record("new", "plant", store.KindAvailability),
	)
	wsURL, _, _ := startHub(t, st)

	recs := readSnapshot(t, dial(t, wsURL))
	if got := ids(recs); len(got) != 2 || got[0] != "new" || got[1] != "old" {
		t.Fatalf("snapshot ids: got %v, want [new old]", got)
	}
	if recs[0].Diagnostics == nil {
		t.Error("diagnostics: missing")
	}
}

func TestHub_EmptySnapshotIsList(t *testing.T) {
	wsURL, _, _ := startHub(t, newStore())
	if recs := readSnapshot(t, dial(t, wsURL)); len(recs) != 0 {
		t.Errorf("snapshot: got %d records, want 0", len(recs))
	}
}

func TestHub_SnapshotFilteredByQuery(t *testing.T) {
	st := newStore(
		record("a1", "plant", store.KindAvailability),
		record("o1", "plant", store.KindOptimize),
		record("o2", "depot", store.KindOptimize),
	)
	wsURL, _, _ := startHub(t, st)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"o2", "o1", "a1"}},
		{"?scenario=plant", []string{"o1", "a1"}},
		{"?kind=optimize", []string{"o2", "o1"}},
		{"?scenario=plant&kind=optimize", []string{"o1"}},
		{"?scenario=nowhere", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got := ids(readSnapshot(t, dial(t, wsURL+tc.query)))
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("ids: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHub_PublishReachesMatchingClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore())

	all := dial(t, wsURL)
	plant := dial(t, wsURL+"?scenario=plant")
	depot := dial(t, wsURL+"?scenario=depot")
	for _, c := range []*websocket.Conn{all, plant, depot} {
		readSnapshot(t, c)
	}

	hub.Publish(response(record("p1", "plant", store.KindAvailability)))
	hub.Publish(response(record("d1", "depot", store.KindOptimize)))

	if id := readEvaluation(t, all).ID; id != "p1" {
		t.Errorf("all: first id %q, want p1", id)
	}
	if id := readEvaluation(t, all).ID; id != "d1" {
		t.Errorf("all: second id %q, want d1", id)
	}
	if rec := readEvaluation(t, plant); rec.ID != "p1" || rec.Scenario != "plant" {
		t.Errorf("plant: got %+v, want p1", rec)
	}
	// The depot client skipped p1: its first event is d1.
	if rec := readEvaluation(t, depot); rec.ID != "d1" || rec.Kind != store.KindOptimize {
		t.Errorf("depot: got %+v, want d1", rec)
	}
}

func TestHub_FilterUpdateSendsNewSnapshot(t *testing.T) {
	st := newStore(
		record("a1", "plant", store.KindAvailability),
		record("o1", "plant", store.KindOptimize),
	)
	wsURL, hub, _ := startHub(t, st)

	conn := dial(t, wsURL)
	if got := readSnapshot(t, conn); len(got) != 2 {
		t.Fatalf("initial snapshot: got %d records, want 2", len(got))
	}

	if err := conn.WriteJSON(wsHub.Filter{Kind: store.KindOptimize}); err != nil {
		t.Fatalf("write filter: %v", err)
	}
	if got := ids(readSnapshot(t, conn)); len(got) != 1 || got[0] != "o1" {
		t.Fatalf("filtered snapshot: got %v, want [o1]", got)
	}

	hub.Publish(response(record("a2", "plant", store.KindAvailability)))
	hub.Publish(response(record("o2", "plant", store.KindOptimize)))
	if id := readEvaluation(t, conn).ID; id != "o2" {
		t.Errorf("after filter change: got %q, want o2", id)
	}
}

func TestHub_InvalidFilterUpdateKeepsFilter(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore())
	conn := dial(t, wsURL+"?kind=evaluate")
	readSnapshot(t, conn)

	for _, bad := range []string{`{"kind":"forecast"}`, `not json`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(bad)); err != nil {
			t.Fatalf("write: %v", err)
		}
		m := read(t, conn)
		if m.Event != wsHub.EventError {
			t.Fatalf("%s: event %q, want error", bad, m.Event)
		}
	}

	hub.Publish(response(record("a1", "plant", store.KindAvailability)))
	hub.Publish(response(record("e1", "plant", store.KindEvaluate)))
	if id := readEvaluation(t, conn).ID; id != "e1" {
		t.Errorf("got %q, want e1", id)
	}
}

func TestHub_UnknownKindQueryRejected(t *testing.T) {
	hub := wsHub.New(newStore())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?kind=forecast", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response: got %v, want 400", resp)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newStore())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHub_CountFollowsConnections(t *testing.T) {
	wsURL, hub, _ := startHub(t, newStore())

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readSnapshot(t, conns[i])
	}
	waitCount(t, hub, 3)

	conns[0].Close()
	waitCount(t, hub, 2)
}

func TestHub_CancelClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newStore())

	conn := dial(t, wsURL)
	readSnapshot(t, conn)
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}

	// Late connections are closed straight away.
	late := dial(t, wsURL)
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("expected a late connection to be closed")
	}
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after shutdown: got %d, want 0", n)
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := wsHub.New(newStore()) // Run not started: nothing drains the queue
	done := make(chan struct{})
	go func() {
		rec := response(record("x", "plant", store.KindAvailability))
		for i := 0; i < 1000; i++ {
			hub.Publish(rec)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}
