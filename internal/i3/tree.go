package i3

// Node is one node in the WM layout tree: root, outputs, workspaces,
// containers, and windows. Windows are the leaves that carry a Window ID.
type Node struct {
	ID            int64            `json:"id"`
	Type          string           `json:"type"` // root, output, workspace, con, floating_con, dockarea
	Name          string           `json:"name"`
	Num           int              `json:"num,omitempty"` // workspace number, -1 for named-only workspaces
	Window        int64            `json:"window,omitempty"`
	PID           int              `json:"pid,omitempty"`
	Marks         []string         `json:"marks,omitempty"`
	Focused       bool             `json:"focused"`
	Output        string           `json:"output,omitempty"`
	Rect          Rect             `json:"rect"`
	WindowRect    Rect             `json:"window_rect"`
	WindowProps   WindowProperties `json:"window_properties,omitempty"`
	AppID         string           `json:"app_id,omitempty"` // sway native windows
	Nodes         []*Node          `json:"nodes,omitempty"`
	FloatingNodes []*Node          `json:"floating_nodes,omitempty"`
}

// WindowProperties carries X11 window metadata.
type WindowProperties struct {
	Class    string `json:"class,omitempty"`
	Instance string `json:"instance,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Rect is a window or container geometry.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Class returns the best available window class: X11 class, falling back
// to the Wayland app_id.
func (n *Node) Class() string {
	if n.WindowProps.Class != "" {
		return n.WindowProps.Class
	}
	return n.AppID
}

// IsWindow reports whether this node is an actual application window
// rather than a split container or workspace.
func (n *Node) IsWindow() bool {
	if n.Type != "con" && n.Type != "floating_con" {
		return false
	}
	return n.Window != 0 || n.AppID != ""
}

// HasMark reports whether the node carries the given mark.
func (n *Node) HasMark(mark string) bool {
	for _, m := range n.Marks {
		if m == mark {
			return true
		}
	}
	return false
}

// WindowInfo is the flattened view of one window produced by walking the
// tree: the node plus the workspace context it was found under.
type WindowInfo struct {
	Node       *Node
	Workspace  int    // workspace number the window sits on
	WsName     string // workspace name (scratchpad is "__i3_scratch")
	Output     string
	Floating   bool
	Scratchpad bool
}

// ScratchWorkspace is the name of the internal workspace holding
// scratchpad-resident windows.
const ScratchWorkspace = "__i3_scratch"

// Windows walks the tree and returns every application window with its
// workspace context, scratchpad residents included.
func (n *Node) Windows() []WindowInfo {
	var out []WindowInfo
	n.walk("", 0, "", false, &out)
	return out
}

func (n *Node) walk(wsName string, wsNum int, output string, floating bool, out *[]WindowInfo) {
	switch n.Type {
	case "output":
		output = n.Name
	case "workspace":
		wsName = n.Name
		wsNum = n.Num
	}

	if n.IsWindow() {
		*out = append(*out, WindowInfo{
			Node:       n,
			Workspace:  wsNum,
			WsName:     wsName,
			Output:     output,
			Floating:   floating,
			Scratchpad: wsName == ScratchWorkspace,
		})
	}

	for _, child := range n.Nodes {
		child.walk(wsName, wsNum, output, floating, out)
	}
	for _, child := range n.FloatingNodes {
		child.walk(wsName, wsNum, output, true, out)
	}
}

// FindWindow returns the window with the given container ID, or nil.
func (n *Node) FindWindow(id int64) *WindowInfo {
	for _, w := range n.Windows() {
		if w.Node.ID == id {
			win := w
			return &win
		}
	}
	return nil
}

// ScratchpadWindows returns the windows currently parked in the scratchpad.
func (n *Node) ScratchpadWindows() []WindowInfo {
	var out []WindowInfo
	for _, w := range n.Windows() {
		if w.Scratchpad {
			out = append(out, w)
		}
	}
	return out
}

// WorkspaceOutputs maps each non-scratchpad workspace number to the output
// it currently lives on.
func (n *Node) WorkspaceOutputs() map[int]string {
	out := make(map[int]string)
	var visit func(node *Node, output string)
	visit = func(node *Node, output string) {
		if node.Type == "output" {
			output = node.Name
		}
		if node.Type == "workspace" && node.Name != ScratchWorkspace {
			out[node.Num] = output
		}
		for _, child := range node.Nodes {
			visit(child, output)
		}
	}
	visit(n, "")
	return out
}
