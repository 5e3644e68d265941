package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	out, err := Parse([]string{"x-forwarded-for: 10.0.0.1", "Accept: text/html", "", "Referer: https://a.example/x:y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"X-Forwarded-For": "10.0.0.1",
		"Accept":          "text/html",
		"Referer":         "https://a.example/x:y",
	}, out)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]string{"BadHeader"})
	assert.Error(t, err)

	_, err = Parse([]string{": value"})
	assert.Error(t, err)
}
