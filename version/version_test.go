package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String("signal-web")
	assert.True(t, strings.HasPrefix(s, "signal-web version "+Version), s)

	defer func(r string) { Revision = r }(Revision)
	Revision = "abc123"
	assert.Contains(t, String("signal-web"), "(abc123)")
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "signal-web/"+Version, UserAgent())
}
