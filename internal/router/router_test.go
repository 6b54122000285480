package router

import (
	"errors"
	"testing"

	"github.com/danmuck/framebridge/internal/testutil/testlog"
)

func newDocsRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New("/doc/1",
		Route{Name: "home", Pattern: "/"},
		Route{Name: "doc", Pattern: "/doc/:id"},
		Route{Name: "files", Pattern: "/files/*"},
	)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func TestResolveByPathAndName(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)

	loc, err := r.Resolve(LocationPatch{Path: "/doc/7?tab=notes"})
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if loc.Name != "doc" || loc.Path != "/doc/7" || loc.Params["id"] != "7" || loc.Query.Get("tab") != "notes" {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if loc.FullPath() != "/doc/7?tab=notes" {
		t.Fatalf("unexpected full path: %s", loc.FullPath())
	}

	loc, err = r.Resolve(LocationPatch{Name: "doc", Params: map[string]string{"id": "9"}})
	if err != nil {
		t.Fatalf("resolve name: %v", err)
	}
	if loc.Path != "/doc/9" || loc.Params["id"] != "9" {
		t.Fatalf("unexpected named location: %+v", loc)
	}

	loc, err = r.Resolve(LocationPatch{Path: "/files/a/b.txt"})
	if err != nil || loc.Name != "files" || loc.Params["*"] != "a/b.txt" {
		t.Fatalf("unexpected wildcard location: %+v err=%v", loc, err)
	}

	loc, err = r.Resolve(LocationPatch{Path: "/nowhere"})
	if err != nil || loc.Name != "" {
		t.Fatalf("unknown path should resolve without a name: %+v err=%v", loc, err)
	}
}

func TestResolveErrors(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)
	if _, err := r.Resolve(LocationPatch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
	if _, err := r.Resolve(LocationPatch{Name: "missing"}); !errors.Is(err, ErrUnknownRoute) {
		t.Fatalf("expected ErrUnknownRoute, got %v", err)
	}
	if _, err := r.Resolve(LocationPatch{Name: "doc"}); !errors.Is(err, ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got %v", err)
	}
	if _, err := New("/", Route{Name: "bad", Pattern: "doc"}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}

func TestPushGrowsAndReplaceKeepsHistoryLength(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)

	if err := r.Push(LocationPatch{Path: "/doc/2"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("push should add an entry, len=%d", r.Len())
	}
	if err := r.Replace(LocationPatch{Path: "/doc/3"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if r.Len() != 2 || r.Current().Path != "/doc/3" {
		t.Fatalf("replace should overwrite current entry: len=%d current=%+v", r.Len(), r.Current())
	}
	if err := r.Back(); err != nil {
		t.Fatalf("back: %v", err)
	}
	if r.Current().Path != "/doc/1" || r.Len() != 2 {
		t.Fatalf("unexpected state after back: %+v len=%d", r.Current(), r.Len())
	}
	if err := r.Back(); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
	if err := r.Push(LocationPatch{Path: "/"}); err != nil {
		t.Fatalf("push after back: %v", err)
	}
	if r.Len() != 2 || r.Current().Name != "home" {
		t.Fatalf("push after back should drop forward entries: %+v", r.Entries())
	}
}

func TestDuplicateNavigationIsNoop(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)
	calls := 0
	r.BeforeEach(func(Transition) error { calls++; return nil })
	if err := r.Replace(LocationPatch{Path: "/doc/1"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if calls != 0 {
		t.Fatalf("duplicate navigation must not fire hooks")
	}
}

func TestBeforeUpdateOnlyForSameRoute(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)
	var updates []Transition
	remove := r.BeforeUpdate(func(tr Transition) error {
		updates = append(updates, tr)
		return nil
	})

	if err := r.Push(LocationPatch{Path: "/doc/2"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := r.Push(LocationPatch{Path: "/"}); err != nil {
		t.Fatalf("push home: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected one update transition, got %d", len(updates))
	}
	if updates[0].From.Path != "/doc/1" || updates[0].To.Path != "/doc/2" || updates[0].To.Name != "doc" {
		t.Fatalf("unexpected transition: %+v", updates[0])
	}

	remove()
	if err := r.Push(LocationPatch{Path: "/doc/5"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := r.Push(LocationPatch{Path: "/doc/6"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("removed hook still fired")
	}
}

func TestHookErrorAbortsNavigation(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)
	r.BeforeEach(func(Transition) error { return errors.New("blocked") })
	err := r.Push(LocationPatch{Path: "/doc/2"})
	if !errors.Is(err, ErrNavigationAborted) {
		t.Fatalf("expected ErrNavigationAborted, got %v", err)
	}
	if r.Len() != 1 || r.Current().Path != "/doc/1" {
		t.Fatalf("aborted navigation changed history: %+v", r.Entries())
	}
}

func TestHookMayNavigateReentrantly(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)
	var inner error
	once := false
	r.BeforeUpdate(func(tr Transition) error {
		if once {
			return nil
		}
		once = true
		inner = r.Replace(LocationPatch{Path: "/doc/1?from=hook"})
		return nil
	})
	err := r.Push(LocationPatch{Path: "/doc/2"})
	if !errors.Is(err, ErrNavigationSuperseded) {
		t.Fatalf("outer push should yield to the hook's navigation, got %v", err)
	}
	if inner != nil {
		t.Fatalf("reentrant replace: %v", inner)
	}
	entries := r.Entries()
	if len(entries) != 1 || entries[0].FullPath() != "/doc/1?from=hook" {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestNewerNavigationWinsOverPendingReplace(t *testing.T) {
	testlog.Start(t)
	r := newDocsRouter(t)
	var seen []string
	pushed := false
	r.BeforeUpdate(func(tr Transition) error {
		seen = append(seen, tr.To.Path)
		if tr.To.Path == "/doc/3" && !pushed {
			pushed = true
			if err := r.Push(LocationPatch{Path: "/doc/5"}); err != nil {
				t.Errorf("inner push: %v", err)
			}
		}
		return nil
	})
	if err := r.Replace(LocationPatch{Path: "/doc/3"}); !errors.Is(err, ErrNavigationSuperseded) {
		t.Fatalf("expected superseded replace, got %v", err)
	}
	if len(seen) != 2 || seen[0] != "/doc/3" || seen[1] != "/doc/5" {
		t.Fatalf("unexpected hook order: %v", seen)
	}
	entries := r.Entries()
	if len(entries) != 2 || entries[0].Path != "/doc/1" || entries[1].Path != "/doc/5" {
		t.Fatalf("unexpected history: %+v", entries)
	}
	if got := r.Current().Path; got != "/doc/5" {
		t.Fatalf("current=%s, want /doc/5", got)
	}
}
