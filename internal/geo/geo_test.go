package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Len(t, c.Regions(), 20)
	assert.Equal(t, 107, c.ProvinceCount())

	region, ok := c.RegionOf("RM")
	require.True(t, ok)
	assert.Equal(t, "lazio", region)
	assert.Equal(t, []string{"VT", "RI", "RM", "LT", "FR"}, c.ProvincesOf("lazio"))

	assert.True(t, c.HasProvince("NO"), "Novara must stay a string id")
	assert.False(t, c.HasProvince("XX"))
	assert.Nil(t, c.ProvincesOf("atlantis"))
}

func TestParse_RejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
regions:
  - id: a
    provinces: [{id: X}]
  - id: b
    provinces: [{id: X}]
`))
	assert.ErrorContains(t, err, "duplicate province")
}
