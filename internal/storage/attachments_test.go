package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectNameLayout(t *testing.T) {
	name := ObjectName("user-1", "conv-2", "Report Final.PDF")

	parts := strings.SplitN(name, "/", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "user-1", parts[0])
	assert.Equal(t, "conv-2", parts[1])
	assert.True(t, strings.HasSuffix(parts[2], ".pdf"), "extension should be lowercased: %s", parts[2])
}

func TestObjectNameWithoutExtension(t *testing.T) {
	name := ObjectName("user-1", "conv-2", "README")
	assert.False(t, strings.HasSuffix(name, "."))
}

func TestObjectNameUnique(t *testing.T) {
	a := ObjectName("user-1", "conv-2", "a.png")
	b := ObjectName("user-1", "conv-2", "a.png")
	assert.NotEqual(t, a, b)
}
