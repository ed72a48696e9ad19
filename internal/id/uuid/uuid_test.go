package uuid

import (
	"strings"
	"testing"
	"time"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New("audit-")
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
	require.True(t, strings.HasPrefix(id1, "audit-"))

	_, err = goUUID.Parse(strings.TrimPrefix(id1, "audit-"))
	require.NoError(t, err)
}

func TestGeneratorTime(t *testing.T) {
	t.Parallel()

	gen := New("task-")
	before := time.Now().Add(-time.Second)
	id, err := gen.NewID()
	require.NoError(t, err)

	created, err := gen.Time(id)
	require.NoError(t, err)
	require.WithinDuration(t, before, created, 5*time.Second)

	_, err = gen.Time("task-" + goUUID.NewString())
	require.Error(t, err, "v4 ids carry no timestamp")
	_, err = gen.Time("nonsense")
	require.Error(t, err)
}
