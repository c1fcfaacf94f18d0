package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	err := fmt.Errorf("setup: %w", Config("Va", "negative length %d", -1))
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrFormulation))
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.Contains(t, err.Error(), "name=Va")

	ferr := Formulation("pg - foo", "foo", "undeclared name")
	assert.True(t, errors.Is(ferr, ErrFormulation))
	assert.Contains(t, ferr.Error(), `expr="pg - foo"`)

	derr := Dimension("eq multipliers", 4, 3)
	assert.True(t, errors.Is(derr, ErrDimension))
	assert.Contains(t, derr.Error(), "expected length 4, got 3")

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
