package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLocale(t *testing.T) {
	tests := []struct {
		locale   string
		expected language.Tag
	}{
		{"en_US.UTF-8", language.English},
		{"de_DE.UTF-8", language.German},
		{"de_AT@euro", language.German},
		{"fr_FR", language.English},
		{"C", language.English},
		{"", language.English},
		{"!!", language.English},
	}

	for _, tt := range tests {
		got := MatchLocale(tt.locale)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "locale: %q", tt.locale)
	}
}

func TestNewCLIPrinter_GroupsNumbers(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LANG", "en_US.UTF-8")
	assert.Equal(t, "12,345", NewCLIPrinter().Sprintf("%d", 12345))

	t.Setenv("LC_ALL", "de_DE.UTF-8")
	assert.Equal(t, "12.345", NewCLIPrinter().Sprintf("%d", 12345))
}
