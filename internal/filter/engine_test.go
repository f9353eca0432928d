package filter

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"i3pm/internal/domain/events"
	"i3pm/internal/i3"
	"i3pm/internal/procenv"
	"i3pm/internal/state"
	"i3pm/internal/testutil"
)

func window(id int64, class string, pid int, marks ...string) *i3.Node {
	return &i3.Node{
		ID:          id,
		Type:        "con",
		Window:      id + 1000,
		PID:         pid,
		Marks:       marks,
		WindowProps: i3.WindowProperties{Class: class},
	}
}

func workspace(num int, name string, wins ...*i3.Node) *i3.Node {
	return &i3.Node{Type: "workspace", Num: num, Name: name, Nodes: wins}
}

func tree(workspaces ...*i3.Node) *i3.Node {
	return &i3.Node{
		Type: "root",
		Nodes: []*i3.Node{
			{Type: "output", Name: "eDP-1", Nodes: workspaces},
		},
	}
}

func newTestEngine(t *testing.T, wm *testutil.FakeWM, env *testutil.EnvReader) (*Engine, *state.Store, *testutil.MockEventHub) {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "windows.json"))
	if env == nil {
		env = &testutil.EnvReader{}
	}
	hub := testutil.NewMockEventHub()
	return NewEngine(wm, store, env, hub), store, hub
}

func TestMark_RoundTrip(t *testing.T) {
	if Mark("web") != "project:web" {
		t.Errorf("Mark(web) = %q", Mark("web"))
	}
	p, ok := ProjectFromMarks([]string{"other", "project:backend"})
	if !ok || p != "backend" {
		t.Errorf("ProjectFromMarks = %q, %v", p, ok)
	}
	if _, ok := ProjectFromMarks([]string{"unrelated"}); ok {
		t.Error("marks without the prefix must not resolve a project")
	}
}

func TestHide_MovesProjectWindowsToScratchpad(t *testing.T) {
	wm := testutil.NewFakeWM(tree(
		workspace(1, "1", window(10, "Alacritty", 100, "project:web")),
		workspace(2, "2",
			window(11, "firefox", 101, "project:web"),
			window(12, "Code", 102, "project:api"),
		),
	), nil)
	engine, store, hub := newTestEngine(t, wm, nil)

	result, err := engine.Hide(context.Background(), "web")
	if err != nil {
		t.Fatalf("Hide() error = %v", err)
	}
	if len(result.Hidden) != 2 {
		t.Fatalf("hidden = %v, want windows 10 and 11", result.Hidden)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v, want none", result.Errors)
	}

	// One batched round trip for any number of windows.
	cmds := wm.Commands()
	if len(cmds) != 1 {
		t.Fatalf("RunCommand called %d times, want 1", len(cmds))
	}
	if !strings.Contains(cmds[0], "[con_id=10] move scratchpad") ||
		!strings.Contains(cmds[0], "[con_id=11] move scratchpad") {
		t.Errorf("batched command = %q", cmds[0])
	}
	if strings.Contains(cmds[0], "con_id=12") {
		t.Error("window of another project must not be hidden")
	}

	for _, id := range []int64{10, 11} {
		w, ok := store.Get(id)
		if !ok || !w.Hidden {
			t.Errorf("window %d not marked hidden in store", id)
		}
	}
	if len(hub.EventsOfType(events.EventTypeWindowHidden)) != 1 {
		t.Error("expected one window_hidden event")
	}
}

func TestHide_CapturesPreHideState(t *testing.T) {
	floating := window(20, "pavucontrol", 200, "project:web")
	floating.Type = "floating_con"
	floating.Rect = i3.Rect{X: 100, Y: 100, Width: 800, Height: 600}
	ws := workspace(3, "3")
	ws.FloatingNodes = []*i3.Node{floating}

	wm := testutil.NewFakeWM(tree(ws), nil)
	engine, store, _ := newTestEngine(t, wm, nil)

	if _, err := engine.Hide(context.Background(), "web"); err != nil {
		t.Fatalf("Hide() error = %v", err)
	}

	w, ok := store.Get(20)
	if !ok {
		t.Fatal("window 20 not tracked")
	}
	if w.Workspace != 3 {
		t.Errorf("captured workspace = %d, want 3", w.Workspace)
	}
	if !w.Floating {
		t.Error("floating state not captured")
	}
	if w.Geometry == nil || w.Geometry.Width != 800 || w.Geometry.Height != 600 ||
		w.Geometry.X != 100 || w.Geometry.Y != 100 {
		t.Errorf("captured geometry = %+v", w.Geometry)
	}
}

func TestHide_UnknownProject(t *testing.T) {
	wm := testutil.NewFakeWM(tree(
		workspace(1, "1", window(10, "Alacritty", 100, "project:web")),
	), nil)
	engine, _, _ := newTestEngine(t, wm, nil)

	result, err := engine.Hide(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Hide() error = %v", err)
	}
	if len(result.Hidden) != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want empty success", result)
	}
	if len(wm.Commands()) != 0 {
		t.Error("no commands should run for an unknown project")
	}
}

func TestHide_GlobalScopeStaysVisible(t *testing.T) {
	wm := testutil.NewFakeWM(tree(
		workspace(1, "1",
			window(10, "Alacritty", 100),
			window(11, "spotify", 101),
		),
	), nil)
	engine, store, _ := newTestEngine(t, wm, nil)

	store.Upsert(state.TrackedWindow{WindowID: 10, Project: "web", Scope: procenv.ScopeScoped, Workspace: 1})
	store.Upsert(state.TrackedWindow{WindowID: 11, Project: "web", Scope: procenv.ScopeGlobal, Workspace: 1})

	result, err := engine.Hide(context.Background(), "web")
	if err != nil {
		t.Fatalf("Hide() error = %v", err)
	}
	if len(result.Hidden) != 1 || result.Hidden[0] != 10 {
		t.Errorf("hidden = %v, want only window 10", result.Hidden)
	}
	if w, _ := store.Get(11); w.Hidden {
		t.Error("global window must never be hidden")
	}
}

func TestHide_PartialFailure(t *testing.T) {
	wm := testutil.NewFakeWM(tree(
		workspace(1, "1",
			window(10, "Alacritty", 100, "project:web"),
			window(11, "firefox", 101, "project:web"),
		),
	), nil)
	wm.FailFor = []string{"con_id=11"}
	engine, store, _ := newTestEngine(t, wm, nil)

	result, err := engine.Hide(context.Background(), "web")
	if err != nil {
		t.Fatalf("Hide() error = %v", err)
	}
	if len(result.Hidden) != 1 || result.Hidden[0] != 10 {
		t.Errorf("hidden = %v, want only window 10", result.Hidden)
	}
	if len(result.Errors) != 1 || result.Errors[0].WindowID != 11 {
		t.Errorf("errors = %v, want failure for window 11", result.Errors)
	}
	if w, _ := store.Get(11); w.Hidden {
		t.Error("failed window must not be marked hidden")
	}
}

func TestHide_EnvironOwnership(t *testing.T) {
	wm := testutil.NewFakeWM(tree(
		workspace(1, "1", window(10, "Alacritty", 4242)),
	), nil)
	env := &testutil.EnvReader{Envs: map[int]map[string]string{
		4242: {"PROJECT_NAME": "web", "APP_NAME": "term"},
	}}
	engine, _, _ := newTestEngine(t, wm, env)

	result, err := engine.Hide(context.Background(), "web")
	if err != nil {
		t.Fatalf("Hide() error = %v", err)
	}
	if len(result.Hidden) != 1 {
		t.Errorf("hidden = %v, want window 10 via environment ownership", result.Hidden)
	}
}

func scratchTree(wins ...*i3.Node) *i3.Node {
	scratch := workspace(-1, i3.ScratchWorkspace, wins...)
	return tree(
		workspace(1, "1"),
		workspace(2, "2"),
		scratch,
	)
}

func TestRestore_ReturnsWindowsToCapturedWorkspace(t *testing.T) {
	wm := testutil.NewFakeWM(
		scratchTree(window(10, "Alacritty", 100, "project:web")),
		[]i3.Workspace{{Num: 1}, {Num: 2, Focused: true}},
	)
	engine, store, hub := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{WindowID: 10, Project: "web", Workspace: 1, Hidden: true})

	result, err := engine.Restore(context.Background(), "web")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(result.Restored) != 1 {
		t.Fatalf("restored = %v, want window 10", result.Restored)
	}
	r := result.Restored[0]
	if r.Workspace != 1 || r.Fallback {
		t.Errorf("restored to workspace %d (fallback=%t), want captured workspace 1", r.Workspace, r.Fallback)
	}

	cmd := wm.Commands()[0]
	if !strings.Contains(cmd, "[con_id=10] scratchpad show") ||
		!strings.Contains(cmd, "[con_id=10] move container to workspace number 1") ||
		!strings.Contains(cmd, "[con_id=10] floating disable") {
		t.Errorf("restore command = %q", cmd)
	}

	w, _ := store.Get(10)
	if w.Hidden {
		t.Error("restored window still marked hidden")
	}
	if len(hub.EventsOfType(events.EventTypeWindowRestored)) != 1 {
		t.Error("expected one window_restored event")
	}
}

func TestRestore_FloatingGeometryReapplied(t *testing.T) {
	wm := testutil.NewFakeWM(
		scratchTree(window(20, "pavucontrol", 200, "project:web")),
		[]i3.Workspace{{Num: 3, Focused: true}},
	)
	engine, store, _ := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{
		WindowID:  20,
		Project:   "web",
		Workspace: 3,
		Floating:  true,
		Geometry:  &i3.Rect{X: 100, Y: 100, Width: 800, Height: 600},
		Hidden:    true,
	})

	if _, err := engine.Restore(context.Background(), "web"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	cmd := wm.Commands()[0]
	for _, want := range []string{
		"[con_id=20] floating enable",
		"[con_id=20] resize set 800 px 600 px",
		"[con_id=20] move position 100 100",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("restore command missing %q: %q", want, cmd)
		}
	}
}

func TestRestore_FallbackWhenWorkspaceGone(t *testing.T) {
	wm := testutil.NewFakeWM(
		scratchTree(window(10, "Alacritty", 100, "project:web")),
		[]i3.Workspace{{Num: 2, Focused: true}},
	)
	engine, store, _ := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{WindowID: 10, Project: "web", Workspace: 7, Hidden: true})

	result, err := engine.Restore(context.Background(), "web")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(result.Restored) != 1 {
		t.Fatalf("restored = %v", result.Restored)
	}
	r := result.Restored[0]
	if r.Workspace != 2 || !r.Fallback {
		t.Errorf("restored to workspace %d (fallback=%t), want focused workspace 2 with fallback", r.Workspace, r.Fallback)
	}
}

func TestRestore_OtherProjectsStayHidden(t *testing.T) {
	wm := testutil.NewFakeWM(
		scratchTree(
			window(10, "Alacritty", 100, "project:web"),
			window(12, "Code", 102, "project:api"),
		),
		[]i3.Workspace{{Num: 1, Focused: true}},
	)
	engine, store, _ := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{WindowID: 10, Project: "web", Workspace: 1, Hidden: true})
	store.Upsert(state.TrackedWindow{WindowID: 12, Project: "api", Workspace: 1, Hidden: true})

	result, err := engine.Restore(context.Background(), "web")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(result.Restored) != 1 || result.Restored[0].WindowID != 10 {
		t.Errorf("restored = %v, want only window 10", result.Restored)
	}
	if w, _ := store.Get(12); !w.Hidden {
		t.Error("other project's window must stay hidden")
	}
}

func TestSwitch_HideThenRestore(t *testing.T) {
	scratch := workspace(-1, i3.ScratchWorkspace, window(30, "Code", 300, "project:api"))
	wm := testutil.NewFakeWM(
		tree(
			workspace(1, "1", window(10, "Alacritty", 100, "project:web")),
			workspace(2, "2", window(11, "firefox", 101, "project:web")),
			scratch,
		),
		[]i3.Workspace{{Num: 1, Focused: true}, {Num: 2}},
	)
	engine, store, _ := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{WindowID: 30, Project: "api", Workspace: 2, Hidden: true})

	result, err := engine.Switch(context.Background(), "web", "api")
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if result.Hide == nil || len(result.Hide.Hidden) != 2 {
		t.Errorf("hide half = %+v, want 2 windows hidden", result.Hide)
	}
	if result.Restore == nil || len(result.Restore.Restored) != 1 {
		t.Errorf("restore half = %+v, want 1 window restored", result.Restore)
	}
}

func TestSwitch_EmptyFromSkipsHide(t *testing.T) {
	wm := testutil.NewFakeWM(
		scratchTree(window(10, "Alacritty", 100, "project:web")),
		[]i3.Workspace{{Num: 1, Focused: true}},
	)
	engine, store, _ := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{WindowID: 10, Project: "web", Workspace: 1, Hidden: true})

	result, err := engine.Switch(context.Background(), "", "web")
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if result.Hide != nil {
		t.Error("empty from must skip the hide half")
	}
	if result.Restore == nil || len(result.Restore.Restored) != 1 {
		t.Errorf("restore half = %+v", result.Restore)
	}
}

func TestSwitch_SameProjectSkipsHide(t *testing.T) {
	wm := testutil.NewFakeWM(
		tree(workspace(1, "1", window(10, "Alacritty", 100, "project:web"))),
		[]i3.Workspace{{Num: 1, Focused: true}},
	)
	engine, _, _ := newTestEngine(t, wm, nil)

	result, err := engine.Switch(context.Background(), "web", "web")
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if result.Hide != nil {
		t.Error("switching to the active project must not hide it")
	}
}

func TestOwnership_StoreBeatsMark(t *testing.T) {
	wm := testutil.NewFakeWM(tree(
		workspace(1, "1", window(10, "Alacritty", 100, "project:stale")),
	), nil)
	engine, store, _ := newTestEngine(t, wm, nil)
	store.Upsert(state.TrackedWindow{WindowID: 10, Project: "fresh", Scope: procenv.ScopeScoped, Workspace: 1})

	result, err := engine.Hide(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Hide() error = %v", err)
	}
	if len(result.Hidden) != 1 {
		t.Errorf("store ownership should win over the mark: %v", result.Hidden)
	}
}
