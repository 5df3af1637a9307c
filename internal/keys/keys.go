// Package keys maps entity ids to their on-disk locations and key/value store keys.
package keys

import (
	"path/filepath"
	"strings"
)

const (
	// CatalogKey holds the workspace catalog in the shared key/value store.
	CatalogKey = "catalog.json"
	// DataFileName is the per-workspace vertex data file under the workspace root.
	DataFileName = "capsule.json"

	WorkspacePrefix = "ws-"
	VertexPrefix    = "vert-"
	LegacySuffix    = ".json"
)

// AssetDirectory joins a workspace root and a vertex id. Trailing separators
// on root are dropped so the result never contains a doubled separator.
// An empty root or id yields "".
func AssetDirectory(root, vertexID string) string {
	if strings.TrimSpace(root) == "" || strings.TrimSpace(vertexID) == "" {
		return ""
	}
	trimmed := strings.TrimRight(root, `/\`)
	if trimmed == "" {
		// root was only separators, i.e. the filesystem root
		trimmed = root[:1]
	}
	return filepath.Join(trimmed, vertexID)
}

// DataFile returns the path of the workspace's data file, or "" for an empty root.
func DataFile(root string) string {
	if strings.TrimSpace(root) == "" {
		return ""
	}
	return filepath.Join(root, DataFileName)
}

// WorkspaceKey is the legacy flat key of a workspace record.
func WorkspaceKey(id string) string { return WorkspacePrefix + id + LegacySuffix }

// VertexKey is the legacy flat key of a vertex record.
func VertexKey(id string) string { return VertexPrefix + id + LegacySuffix }

// ParseWorkspaceKey extracts the id from a legacy workspace key.
func ParseWorkspaceKey(key string) (string, bool) {
	return parse(key, WorkspacePrefix)
}

// ParseVertexKey extracts the id from a legacy vertex key.
func ParseVertexKey(key string) (string, bool) {
	return parse(key, VertexPrefix)
}

func parse(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, LegacySuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, prefix), LegacySuffix)
	if id == "" {
		return "", false
	}
	return id, true
}
