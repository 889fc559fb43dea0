package records

import (
	"testing"

	"pcindex/internal/geom"
	"pcindex/internal/postcode"

	"github.com/stretchr/testify/assert"
)

func TestPostcodesFrom_DropsMissing(t *testing.T) {
	pcs := PostcodesFrom([]PostcodeRecord{
		{ID: 1, Code: postcode.MustParse("1234AB"), HasCode: true},
		{ID: 2},
		{ID: 3, Code: postcode.MustParse("5678CD"), HasCode: true},
	})
	assert.Equal(t, []uint64{1, 3}, pcs.IDs)
	assert.Equal(t, []postcode.Code{postcode.MustParse("1234AB"), postcode.MustParse("5678CD")}, pcs.Codes)
}

func TestMerge_Concatenates(t *testing.T) {
	a := &Locations{}
	a.Push(1, geom.Point{X: 1, Y: 1})
	b := &Locations{}
	b.Push(2, geom.Point{X: 2, Y: 2})
	b.Push(3, geom.Point{X: 3, Y: 3})

	m := a.Merge(b)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []uint64{1, 2, 3}, m.IDs)
	assert.Equal(t, geom.Point{X: 3, Y: 3}, m.Points[2])

	var none *Locations
	assert.Same(t, b, none.Merge(b))
	assert.Equal(t, 0, none.Len())
}

func TestPostcodesMerge_NilSides(t *testing.T) {
	a := &Postcodes{}
	a.Push(9, postcode.MustParse("1000AA"))
	var none *Postcodes
	assert.Same(t, a, a.Merge(nil))
	assert.Same(t, a, none.Merge(a))
}
