package status

import (
	"os"
)

// Code identifies a condition surfaced to the operator.
type Code int

const (
	None Code = iota
	NoInternet
	NoDatabaseConnection
	NoNTPData
	BufferFull
	ExternalADCInitFailure
	SensorReadFailure
)

var codeNames = map[Code]string{
	None:                   "none",
	NoInternet:             "no_internet",
	NoDatabaseConnection:   "no_database_connection",
	NoNTPData:              "no_ntp_data",
	BufferFull:             "buffer_full",
	ExternalADCInitFailure: "external_adc_init_failure",
	SensorReadFailure:      "sensor_read_failure",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Diagnostics is the pipeline state published on every uploader invocation.
type Diagnostics struct {
	BufferSize     int `json:"buffer_size"`
	BufferCapacity int `json:"buffer_capacity"`
	ReadIndex      int `json:"read_index"`
	WriteIndex     int `json:"write_index"`
	Pending        int `json:"pending"`
}

// Reporter receives status codes and diagnostics from the pipeline.
//
// A fatal report must, after being surfaced, end the process so it can be
// restarted; the pipeline makes no further calls once it has reported a fatal
// condition.
type Reporter interface {
	Report(code Code, fatal bool)
	Diagnostics(d Diagnostics)
}

// Restarter ends the process after a fatal condition.
type Restarter func(code Code)

// ExitRestarter returns a Restarter that exits with a non-zero status so the
// service supervisor brings the logger back up.
func ExitRestarter() Restarter {
	return func(code Code) {
		os.Exit(10 + int(code))
	}
}

// Multi fans every call out to each reporter in order.
type Multi []Reporter

func (m Multi) Report(code Code, fatal bool) {
	for _, r := range m {
		r.Report(code, fatal)
	}
}

func (m Multi) Diagnostics(d Diagnostics) {
	for _, r := range m {
		r.Diagnostics(d)
	}
}
