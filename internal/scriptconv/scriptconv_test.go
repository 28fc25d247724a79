package scriptconv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertAppliesHantToHansTable(t *testing.T) {
	c := New()
	out, err := c.Convert(context.Background(), "hant-to-hans", "繁體中文")
	require.NoError(t, err)
	assert.Equal(t, "简体中文", out)
}

func TestConvertRoundTripsHansToHant(t *testing.T) {
	c := New()
	simplified, err := c.Convert(context.Background(), "hant-to-hans", "繁體中文")
	require.NoError(t, err)
	back, err := c.Convert(context.Background(), "hans-to-hant", simplified)
	require.NoError(t, err)
	assert.Equal(t, "繁體中文", back)
}

func TestConvertLeavesUnmappedRunesUnchanged(t *testing.T) {
	c := New()
	out, err := c.Convert(context.Background(), "hant-to-hans", "繁體中文 hello 123")
	require.NoError(t, err)
	assert.Contains(t, out, "hello 123")
}

func TestConvertUnknownConversionIsIdentity(t *testing.T) {
	c := New()
	out, err := c.Convert(context.Background(), "does-not-exist", "unchanged")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", out)
}
