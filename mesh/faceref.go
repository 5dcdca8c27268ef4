package mesh

import "fmt"

// FaceRef is a signed face reference: positive values designate interior
// face id+1, negative values boundary face -(id+1), zero designates no face.
type FaceRef int32

// NoFace is the zero FaceRef
const NoFace FaceRef = 0

// InteriorRef references interior face id.
func InteriorRef(id int) FaceRef { return FaceRef(id + 1) }

// BoundaryRef references boundary face id.
func BoundaryRef(id int) FaceRef { return FaceRef(-(id + 1)) }

func (r FaceRef) IsInterior() bool { return r > 0 }
func (r FaceRef) IsBoundary() bool { return r < 0 }
func (r FaceRef) IsNone() bool     { return r == 0 }

// ID returns the face index within its family.
func (r FaceRef) ID() int {
	if r < 0 {
		return int(-r) - 1
	}
	return int(r) - 1
}

func (r FaceRef) String() string {
	switch {
	case r > 0:
		return fmt.Sprintf("i%d", r.ID())
	case r < 0:
		return fmt.Sprintf("b%d", r.ID())
	}
	return "none"
}
