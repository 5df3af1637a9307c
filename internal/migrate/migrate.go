// Package migrate reads a workspace data file in any historical shape and
// normalizes it to the current versioned vertices-only shape.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/models"
	"github.com/starford/capsule/internal/storage"
)

// CurrentVersion is stamped on every normalized data file.
// Version 2 removed the embedded workspace object.
const CurrentVersion = 2

var (
	// ErrNotFound means the workspace has no data file yet.
	ErrNotFound = errors.New("migrate: no workspace data")
	// ErrCorrupt means a data file exists but matches no known shape.
	// It wraps ErrNotFound: corrupt data degrades to "no content yet".
	ErrCorrupt = fmt.Errorf("%w: unrecognized or unparsable data", ErrNotFound)
)

var timeNow = time.Now

// Format identifies which historical shape a data file had.
type Format int

const (
	FormatUnknown Format = iota
	// FormatLegacyCombined holds both a "workspace" object and a "vertices" map.
	FormatLegacyCombined
	// FormatUnversioned holds "vertices" without a usable "version".
	FormatUnversioned
	// FormatVersioned holds "version" and "vertices".
	FormatVersioned
)

func (f Format) String() string {
	switch f {
	case FormatLegacyCombined:
		return "legacy-combined"
	case FormatUnversioned:
		return "unversioned"
	case FormatVersioned:
		return "versioned"
	default:
		return "unknown"
	}
}

// Data is the current on-disk shape of a workspace data file.
type Data struct {
	Version  int                            `json:"version"`
	Vertices map[string]models.StoredVertex `json:"vertices"`
}

// Result describes what Decode found.
type Result struct {
	Format        Format
	SourceVersion int
	// Migrated is true when the input was not already in the current shape
	// and a write-back is needed.
	Migrated bool
	// Skipped lists the ids of vertex entries that could not be decoded.
	Skipped []string
}

// envelope is the union of every known shape, discriminated by which keys are present.
type envelope struct {
	Version   json.RawMessage `json:"version"`
	Workspace json.RawMessage `json:"workspace"`
	Vertices  json.RawMessage `json:"vertices"`
}

// Decode sniffs raw and returns it normalized to the current shape.
// Anything that is not one of the known shapes yields ErrCorrupt.
func Decode(raw []byte) (Data, Result, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Data{}, Result{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !present(env.Vertices) {
		return Data{}, Result{}, ErrCorrupt
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(env.Vertices, &entries); err != nil {
		return Data{}, Result{}, fmt.Errorf("%w: vertices: %v", ErrCorrupt, err)
	}

	res := Result{}
	vertices := make(map[string]models.StoredVertex, len(entries))
	for id, entry := range entries {
		var v models.StoredVertex
		if err := json.Unmarshal(entry, &v); err != nil {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if v.CreatedAt.IsZero() || v.UpdatedAt.IsZero() {
			res.Migrated = true
		}
		vertices[id] = v
	}
	sort.Strings(res.Skipped)

	version, hasVersion := parseVersion(env.Version)
	switch {
	case present(env.Workspace):
		// The embedded workspace is dropped: the catalog owns workspace metadata.
		res.Format = FormatLegacyCombined
		res.Migrated = true
	case !hasVersion:
		res.Format = FormatUnversioned
		res.Migrated = true
	default:
		res.Format = FormatVersioned
		res.SourceVersion = version
		res.Migrated = res.Migrated || version != CurrentVersion
	}

	return Normalize(Data{Version: version, Vertices: vertices}), res, nil
}

// Normalize stamps the current version, keys every vertex by its map key,
// replaces nil collections with empty ones and fills missing timestamps.
// Normalize is idempotent.
func Normalize(d Data) Data {
	out := Data{
		Version:  CurrentVersion,
		Vertices: make(map[string]models.StoredVertex, len(d.Vertices)),
	}
	for id, v := range d.Vertices {
		if id == "" {
			id = v.ID
		}
		if id == "" {
			continue
		}
		v.ID = id
		if v.Tags == nil {
			v.Tags = []string{}
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = timeNow().UTC()
		}
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = v.CreatedAt
		}
		out.Vertices[id] = v
	}
	return out
}

// Encode renders d in the current shape. Map keys are emitted sorted, so
// equal data always encodes to equal bytes.
func Encode(d Data) ([]byte, error) {
	data, err := json.MarshalIndent(Normalize(d), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("migrate: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadWorkspaceData reads the data file under root and normalizes it.
// A missing file yields ErrNotFound; an unparsable one yields ErrCorrupt.
// raw holds the bytes that were read, if any.
func ReadWorkspaceData(p storage.Provider, root string) (d Data, res Result, raw []byte, err error) {
	path := keys.DataFile(root)
	if path == "" {
		return Data{}, Result{}, nil, ErrNotFound
	}
	raw, err = p.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Data{}, Result{}, nil, ErrNotFound
		}
		return Data{}, Result{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	d, res, err = Decode(raw)
	return d, res, raw, err
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func parseVersion(raw json.RawMessage) (int, bool) {
	if !present(raw) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return int(n), true
}
