package region

import (
	"errors"
	"fmt"

	"github.com/udisondev/regions/internal/geom"
)

var (
	// ErrNotFound: region id does not exist or the region was destroyed.
	ErrNotFound = errors.New("region not found")

	// ErrInvalidGeometry: empty included set, invalid area or a world change.
	// Matches geom.ErrInvalidArgument with errors.Is.
	ErrInvalidGeometry = fmt.Errorf("%w: invalid region geometry", geom.ErrInvalidArgument)

	// ErrAlreadyExists: restoring a region under an id that is already registered.
	ErrAlreadyExists = errors.New("region already exists")

	// ErrNotInside: the entity to kick is not inside the region.
	ErrNotInside = errors.New("entity is not inside region")
)
