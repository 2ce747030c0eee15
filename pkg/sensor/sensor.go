package sensor

import (
	"errors"

	"github.com/illmade-knight/go-datalogger/pkg/types"
)

// ErrAcquisition wraps every failure to obtain a reading vector; the sampler
// treats it as a dropped cycle.
var ErrAcquisition = errors.New("sensor acquisition failed")

// Acquirer reads every configured pressure channel once.
type Acquirer interface {
	ReadAll() (types.Readings, error)
}

// AcquirerFunc adapts a function to the Acquirer interface.
type AcquirerFunc func() (types.Readings, error)

func (f AcquirerFunc) ReadAll() (types.Readings, error) {
	return f()
}
