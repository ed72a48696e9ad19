package seo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTaskName(t *testing.T) {
	t.Parallel()

	name, err := ParseTaskName("  Technical-SEO ")
	require.NoError(t, err)
	require.Equal(t, TaskTechnicalSEO, name)

	_, err = ParseTaskName("backup")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownTask))
}

func TestTaskNamesIsClosedSet(t *testing.T) {
	t.Parallel()

	names := TaskNames()
	require.Len(t, names, 5)
	for _, n := range names {
		require.True(t, n.Valid(), n)
	}
	names[0] = "mutated"
	require.Equal(t, TaskContentUpdate, TaskNames()[0])
}

func TestTaskOptionsStrings(t *testing.T) {
	t.Parallel()

	opts := TaskOptions{
		"categories": []any{"broken_links", 42, "security_headers"},
		"single":     "core_web_vitals",
		"typed":      []string{"a"},
		"bad":        12,
	}
	require.Equal(t, []string{"broken_links", "security_headers"}, opts.Strings("categories"))
	require.Equal(t, []string{"core_web_vitals"}, opts.Strings("single"))
	require.Equal(t, []string{"a"}, opts.Strings("typed"))
	require.Nil(t, opts.Strings("bad"))
	require.Nil(t, opts.Strings("missing"))
	require.True(t, TaskOptions{"persist": true}.Bool("persist", false))
	require.False(t, TaskOptions{}.Bool("persist", false))
}
