package graph

import "github.com/RoaringBitmap/roaring/v2"

// State is the compilation state of a Graph: Building or Compiled.
type State interface {
	isState()
}

// Building means the lists carry changes the active CSR does not reflect.
// Dirty holds the rows that changed since the last compilation.
type Building struct {
	Dirty *roaring.Bitmap

	// Invalidated is set when nodes were renumbered; no row of the previous
	// CSR can be reused and it must not serve searches.
	Invalidated bool
}

// Compiled means the active CSR reflects the lists exactly.
type Compiled struct {
	CSR *CSR
}

func (Building) isState() {}
func (Compiled) isState() {}
