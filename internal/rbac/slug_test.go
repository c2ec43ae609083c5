package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Chief Editor":  "chief-editor",
		"Café Über":     "cafe-uber",
		"  admin  ":     "admin",
		"a__b":          "a-b",
		"Reports/Close": "reports-close",
		"":              "",
		"---":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}
