package models

// Forest is an arena of vertices keyed by id.
type Forest map[string]*Vertex

// ResolveWorkspace walks parent links from v until it finds an explicit
// workspace id. The walk is bounded by the forest size; a missing parent,
// a chain that ends without a workspace, or a cycle leaves v unresolved.
func (f Forest) ResolveWorkspace(v Vertex) (string, bool) {
	if v.WorkspaceID != "" {
		return v.WorkspaceID, true
	}
	parentID := v.ParentID
	for steps := 0; steps <= len(f); steps++ {
		if parentID == "" {
			return "", false
		}
		parent, ok := f[parentID]
		if !ok || parent == nil {
			return "", false
		}
		if parent.WorkspaceID != "" {
			return parent.WorkspaceID, true
		}
		parentID = parent.ParentID
	}
	return "", false
}
