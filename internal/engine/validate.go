package engine

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/capsule/internal/apperr"
	"github.com/starford/capsule/internal/models"
)

// Ids become directory names under the workspace root.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func validateWorkspace(ws *models.Workspace) error {
	err := validation.ValidateStruct(ws,
		validation.Field(&ws.ID, validation.Required, validation.Match(idPattern)),
		validation.Field(&ws.Path, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: workspace: %v", apperr.ErrInvalid, err)
	}
	return nil
}

func validateVertex(v *models.Vertex) error {
	err := validation.ValidateStruct(v,
		validation.Field(&v.ID, validation.Required, validation.Match(idPattern)),
		validation.Field(&v.ParentID, validation.NotIn(v.ID).Error("must not be the vertex itself")),
	)
	if err != nil {
		return fmt.Errorf("%w: vertex: %v", apperr.ErrInvalid, err)
	}
	return nil
}
