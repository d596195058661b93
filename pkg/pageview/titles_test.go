package pageview

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageTitleForMW(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Main Page - ExampleWiki", "Main_Page"},
		{"404.php", "404.php"},
		{"Foo Bar Baz - My Wiki", "Foo_Bar_Baz"},
		{"Multi-word - ExampleWiki", "Multi-word"},
		{"Already_Underscored", "Already_Underscored"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, PageTitleForMW(tt.in))
		})
	}
}

func TestTitleFilterRegexp(t *testing.T) {
	re, err := regexp.Compile(titleFilterRegexp("Main_Page"))
	require.NoError(t, err)

	assert.True(t, re.MatchString("Main Page - ExampleWiki"))
	assert.True(t, re.MatchString("Main Page - Other Wiki"))
	assert.False(t, re.MatchString("Main Page"))
	assert.False(t, re.MatchString("Not Main Page - ExampleWiki"))
	assert.False(t, re.MatchString("Main Page/Sub - ExampleWiki"))

	// Metacharacters in titles are literal
	re, err = regexp.Compile(titleFilterRegexp("A.B_(c)"))
	require.NoError(t, err)
	assert.True(t, re.MatchString("A.B (c) - Wiki"))
	assert.False(t, re.MatchString("AxB (c) - Wiki"))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricView, m)

	m, err = ParseMetric("uniques")
	require.NoError(t, err)
	assert.Equal(t, MetricUnique, m)

	_, err = ParseMetric("edits")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
