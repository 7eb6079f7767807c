package cmdb

import (
	"errors"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

func errCascadeCycle(fieldID, valueID, why string) error {
	return types.ErrCascadeCycle.Withf("field %s value %s: %s", fieldID, valueID, why)
}

// fieldErr prefixes the detail of a typed error with the field name.
func fieldErr(f types.Field, err error) error {
	var te *types.Error
	if !errors.As(err, &te) {
		return err
	}
	c := *te
	if c.Detail == "" {
		c.Detail = f.Name
	} else {
		c.Detail = f.Name + ": " + c.Detail
	}
	return &c
}
