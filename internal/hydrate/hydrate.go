// Package hydrate rebuilds live vertex records from stored ones.
package hydrate

import (
	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/models"
)

// Hydrate returns live vertices for ws. Location fields always come from the
// workspace's current path, never from anything baked into stored data, so a
// relocated workspace only needs its catalog path updated.
func Hydrate(ws models.Workspace, stored map[string]models.StoredVertex) models.Forest {
	out := make(models.Forest, len(stored))
	for id, sv := range stored {
		if id == "" {
			continue
		}
		sv.ID = id
		v := sv.Vertex()
		Derive(&v, ws)
		out[id] = &v
	}
	return out
}

// Derive fills the workspace-dependent fields of v in place.
func Derive(v *models.Vertex, ws models.Workspace) {
	v.WorkspaceID = ws.ID
	v.AssetDirectory = keys.AssetDirectory(ws.Path, v.ID)
	if v.AssetDirectory == "" {
		v.IsCorrupt = true
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
}
