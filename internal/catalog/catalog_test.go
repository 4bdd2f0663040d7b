package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	require.Equal(t, 11, c.Len())
	assert.Equal(t, []string{"23#", "24#", "25#", "26#", "27#", "28#", "29#", "30#", "31#", "32#", "33#"}, c.Codes())

	seen := make(map[string]string)
	for _, r := range c.Runes() {
		for _, form := range r.SurfaceForms {
			key := strings.ToLower(form)
			owner, dup := seen[key]
			assert.False(t, dup, "surface form %q shared by %s and %s", form, owner, r.Code)
			seen[key] = r.Code
		}
	}

	ber, ok := c.Get("30#")
	require.True(t, ok)
	assert.Equal(t, "Ber", ber.DisplayName)
	assert.Equal(t, 30, ber.Number)
	assert.Equal(t, 7, c.Index("30#"))
	assert.Equal(t, -1, c.Index("99#"))
	assert.False(t, c.Valid("22#"))
}

func TestLookupAllSurfaceForms(t *testing.T) {
	c := Default()

	for _, r := range c.Runes() {
		for _, form := range r.SurfaceForms {
			code, ok := c.Lookup(form)
			assert.True(t, ok, "form %q", form)
			assert.Equal(t, r.Code, code, "form %q", form)

			code, ok = c.Lookup("出售 " + strings.ToUpper(form) + " 符文")
			assert.True(t, ok, "upper form %q", form)
			assert.Equal(t, r.Code, code, "upper form %q", form)

			code, ok = c.Lookup("selling " + strings.ToLower(form) + " rune")
			assert.True(t, ok, "lower form %q", form)
			assert.Equal(t, r.Code, code, "lower form %q", form)
		}
	}
}

func TestLookupRejectsOutOfRangeTags(t *testing.T) {
	c := Default()

	testCases := []string{
		"99#",
		"22#",
		"34#",
		"#99",
		"12号",
		"123#",
		"#230",
		"订单号 2024",
		"",
		"Login to see Sure deals",
	}

	for _, text := range testCases {
		code, ok := c.Lookup(text)
		assert.False(t, ok, "text %q matched %s", text, code)
	}
}

func TestLookupPrefersNumericTags(t *testing.T) {
	c := Default()

	// name says Ber, tag says Jah: the tag wins
	code, ok := c.Lookup("Ber rune bundle 31#")
	require.True(t, ok)
	assert.Equal(t, "31#", code)

	// two tags: catalog order wins
	code, ok = c.Lookup("33# and 24# combo")
	require.True(t, ok)
	assert.Equal(t, "24#", code)

	// two names: catalog order wins
	code, ok = c.Lookup("Zod or Mal")
	require.True(t, ok)
	assert.Equal(t, "23#", code)
}

func TestFindAll(t *testing.T) {
	c := Default()

	matches := c.FindAll("23# Mal ¥10 | 贝 ¥300 | #31 ¥400 | 99# ¥1")
	require.Len(t, matches, 4)

	assert.Equal(t, "23#", matches[0].Code)
	assert.Equal(t, "23#", matches[1].Code)
	assert.Equal(t, "30#", matches[2].Code)
	assert.Equal(t, "31#", matches[3].Code)

	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Start, matches[i].Start)
	}
	assert.Equal(t, "23#", "23# Mal"[matches[0].Start:matches[0].End])

	assert.Empty(t, c.FindAll(""))
	assert.Empty(t, c.FindAll("nothing to see"))
}

func TestNumber(t *testing.T) {
	assert.Equal(t, 30, Number("30#"))
	assert.Equal(t, 0, Number("abc"))
}
