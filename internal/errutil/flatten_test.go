package errutil

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	assert.NoError(t, Flatten())
	assert.NoError(t, Flatten(nil, nil))

	single := errors.New("boom")
	assert.Same(t, single, Flatten(nil, single, nil))

	err := Flatten(errors.New("a"), nil, errors.New("b"), errors.New("c"))
	require.Error(t, err)
	assert.Equal(t, "a, b, c", err.Error())
}

var errSentinel = errors.New("sentinel")

func TestFlattenKeepsChains(t *testing.T) {
	err := Flatten(errors.New("teardown failed"), errors.Wrap(errSentinel, "step failed"))
	require.Error(t, err)

	assert.ErrorIs(t, err, errSentinel)
	assert.Equal(t, "teardown failed, step failed: sentinel", err.Error())

	nested := Flatten(err, errors.New("later"))
	assert.ErrorIs(t, nested, errSentinel)
}
