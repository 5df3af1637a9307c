package mcpserver

// DataFormatContract describes how Capsule lays out a workspace on disk so
// that LLM consumers can reason about vertices and their assets.
const DataFormatContract = `# Capsule Data Format

A workspace is a folder chosen by the user. Capsule owns two kinds of
files inside it: one data file for the vertex forest and one asset
directory per vertex.

## Data file

` + "`" + `<workspace>/capsule.json` + "`" + ` holds every vertex of the workspace:

` + "```" + `json
{
  "version": 2,
  "vertices": {
    "v1": {
      "id": "v1",
      "title": "Research",
      "kind": "folder",
      "tags": ["project-x"],
      "created_at": "2026-01-15T09:00:00Z",
      "updated_at": "2026-01-15T09:00:00Z"
    },
    "v2": {
      "id": "v2",
      "title": "Reading list",
      "parent_id": "v1",
      "kind": "list",
      "tags": [],
      "created_at": "2026-01-15T09:05:00Z",
      "updated_at": "2026-01-15T09:05:00Z"
    }
  }
}
` + "```" + `

## Rules

1. **Vertices form a forest.** A vertex without ` + "`" + `parent_id` + "`" + ` is a root of its
   workspace. Children find their workspace through their ancestors.
2. **Derived fields are never stored.** ` + "`" + `workspace_id` + "`" + ` and ` + "`" + `asset_directory` + "`" + `
   are recomputed every time the file is loaded.
3. **Ids** start with a letter or digit and contain only letters, digits,
   dots, dashes and underscores.
4. **Do not edit capsule.json by hand** while Capsule runs; use the tools.

## Assets

Each vertex owns ` + "`" + `<workspace>/<vertex-id>/` + "`" + `:

- ` + "`" + `links.json` + "`" + ` – ordered array of ` + "`" + `{"id", "url", "title"}` + "`" + ` entries.
- ` + "`" + `images.json` + "`" + ` – ` + "`" + `{"images": {"<file>": {"alt", "description"}}}` + "`" + `.
- ` + "`" + `notes/<name>.md` + "`" + ` – plain Markdown notes. Optional YAML frontmatter may
  carry ` + "`" + `title` + "`" + ` and ` + "`" + `tags` + "`" + `; inline ` + "`" + `#tags` + "`" + ` are picked up too.
- Image files (png, jpg, jpeg, gif, webp, bmp, tiff, svg) sit directly in
  the directory. Add them with the ` + "`" + `add_image` + "`" + ` tool.
`
