package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thudgame/relay/internal/layout"
	"github.com/thudgame/relay/internal/store"
)

func newTestRegistry(t *testing.T, rules *stubRules, st store.Store) *Registry {
	t.Helper()
	layouts, err := layout.New("")
	if err != nil {
		t.Fatalf("layout.New: %v", err)
	}
	r, err := NewRegistry(RegistryConfig{
		Rules:   rules,
		Store:   st,
		Layouts: layouts,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestCreateSnapshotsLayout(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)

	s, err := r.Create(context.Background(), CreateOptions{Dwarf: "human", Troll: "cpu"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("session must get an identifier")
	}
	if s.Positions() == "" || s.Ruleset() != "classic" {
		t.Fatalf("missing layout snapshot: positions=%q ruleset=%q", s.Positions(), s.Ruleset())
	}
	if len(s.Moves()) != 0 {
		t.Fatalf("fresh game must have an empty log")
	}
	if s.Controller("troll") != ControllerCPU || s.Controller("dwarf") != ControllerHuman {
		t.Fatalf("controllers not recorded")
	}
}

func TestCreateDefaultsToHuman(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)
	s, err := r.Create(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Controller("dwarf") != ControllerHuman || s.Controller("troll") != ControllerHuman {
		t.Fatalf("empty controllers must default to human")
	}
}

func TestAttemptsOnDifferentSessionsRunIndependently(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	rules := &stubRules{
		validateFn: func(moves []string) (bool, error) {
			// Stall the oracle round trip for the slow session only.
			if moves[len(moves)-1] == "dA6-O6" {
				close(entered)
				<-release
			}
			return true, nil
		},
	}
	r := newTestRegistry(t, rules, nil)

	slow, err := r.Create(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fast, err := r.Create(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	slowDone := make(chan error, 1)
	go func() {
		_, err := slow.Attempt(context.Background(), "dA6-O6")
		slowDone <- err
	}()
	<-entered

	// With one session's validation outstanding, the other session's
	// whole workflow must still run to completion.
	fastDone := make(chan error, 1)
	go func() {
		_, err := fast.Attempt(context.Background(), "dL2-K3")
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		if err != nil {
			t.Fatalf("independent attempt failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("attempt queued behind another session's oracle query")
	}
	if got := fast.Moves(); len(got) != 1 || got[0] != "dL2-K3" {
		t.Fatalf("unexpected fast log: %v", got)
	}
	if len(slow.Moves()) != 0 {
		t.Fatalf("stalled session committed early: %v", slow.Moves())
	}

	close(release)
	if err := <-slowDone; err != nil {
		t.Fatalf("stalled attempt failed: %v", err)
	}
	if got := slow.Moves(); len(got) != 1 || got[0] != "dA6-O6" {
		t.Fatalf("unexpected slow log: %v", got)
	}
}

func TestCreatePicksNamedRuleset(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)

	s, err := r.Create(context.Background(), CreateOptions{Ruleset: "kvt"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Ruleset() != "kvt" {
		t.Fatalf("ruleset = %q, want kvt", s.Ruleset())
	}
	classic, cerr := r.Create(context.Background(), CreateOptions{})
	if cerr != nil {
		t.Fatalf("Create: %v", cerr)
	}
	if s.Positions() == classic.Positions() {
		t.Fatalf("kvt layout must differ from classic")
	}

	if _, err := r.Create(context.Background(), CreateOptions{Ruleset: "koom-valley"}); err == nil {
		t.Fatalf("unknown ruleset must fail")
	}
}

func TestCreateRejectsUnknownController(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)
	if _, err := r.Create(context.Background(), CreateOptions{Dwarf: "psychic"}); err == nil {
		t.Fatalf("expected controller kind error")
	}
	if r.Len() != 0 {
		t.Fatalf("failed create leaked a session")
	}
}

func TestConcurrentCreatesUniqueIDs(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Create(context.Background(), CreateOptions{})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- s.ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = true
	}
	if r.Len() != n {
		t.Fatalf("registry holds %d sessions, want %d", r.Len(), n)
	}
}

func TestGetUnknownID(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)
	if _, err := r.Get(context.Background(), "no-such-game"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Get(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
}

func TestGetReturnsSameSession(t *testing.T) {
	r := newTestRegistry(t, &stubRules{}, nil)
	s, err := r.Create(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.Get(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Fatalf("Get must resolve the live session instance")
	}
}

func TestCreateWritesThroughStore(t *testing.T) {
	st := store.NewMemory()
	r := newTestRegistry(t, &stubRules{}, st)

	s, err := r.Create(context.Background(), CreateOptions{Troll: "cpu"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec, err := st.FindOne(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if rec.TrollController != "cpu" || rec.StartingPositions != s.Positions() {
		t.Fatalf("store record mismatch: %+v", rec)
	}
}

func TestGetResumesFromStore(t *testing.T) {
	st := store.NewMemory()
	rules := &stubRules{
		nextFn: func([]string) (string, error) { return "TH7-G6", nil },
	}
	ctx := context.Background()
	if err := st.Save(ctx, &store.Record{
		GameID:            "persisted",
		DwarfController:   "human",
		TrollController:   "cpu",
		Moves:             []string{"dA6-O6"},
		Ruleset:           "classic",
		StartingPositions: "dA6,TH7,RH8",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := newTestRegistry(t, rules, st)
	s, err := r.Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := s.Moves(); len(got) != 1 || got[0] != "dA6-O6" {
		t.Fatalf("resumed log mismatch: %v", got)
	}

	// Resumed CPU session responds exactly once to a wait.
	move, moved, err := s.WaitForCPU(ctx)
	if err != nil || !moved || move != "TH7-G6" {
		t.Fatalf("WaitForCPU on resumed session: move=%q moved=%v err=%v", move, moved, err)
	}
	if _, moved, _ := s.WaitForCPU(ctx); moved {
		t.Fatalf("second WaitForCPU must be a no-op")
	}

	// Subsequent Gets resolve the hydrated instance, not a new copy.
	again, err := r.Get(ctx, "persisted")
	if err != nil || again != s {
		t.Fatalf("resumed session not cached: %v", err)
	}
}
