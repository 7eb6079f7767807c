package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	detailed := ErrNotFound.Withf("schema %s", "abc")

	assert.True(t, errors.Is(detailed, ErrNotFound))
	assert.False(t, errors.Is(detailed, ErrValueNotFound))
	assert.Equal(t, "record does not exist: schema abc", detailed.Error())
	assert.Equal(t, "record does not exist", ErrNotFound.Error(), "sentinel must stay untouched")

	wrapped := fmt.Errorf("creating entity: %w", ErrValueNotUnique.Withf("name=h1"))
	assert.True(t, errors.Is(wrapped, ErrValueNotUnique))
	assert.Equal(t, KindValueIntegrity, KindOf(wrapped))
	assert.Equal(t, 1303, CodeOf(wrapped))
}

func TestStorageErrorHidesCause(t *testing.T) {
	cause := errors.New("disk I/O error: /var/lib/cmdb.db")
	err := ErrStorage.Wrap(cause)

	assert.Equal(t, "internal storage error", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindStorage, KindOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, 0},
		{errors.New("boom"), KindStorage},
		{ErrValidation, KindValidation},
		{ErrHasDependents, KindSchemaIntegrity},
		{ErrValueInUse, KindValueIntegrity},
		{ErrValueNotFound, KindNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "schema_integrity", KindSchemaIntegrity.String())
	assert.Equal(t, 2, CodeOf(errors.New("boom")))
}
