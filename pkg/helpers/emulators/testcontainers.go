// Package emulators starts containerised backends for the store integration
// tests.
package emulators

import "google.golang.org/api/option"

type ImageContainer struct {
	EmulatorImage    string
	EmulatorHTTPPort string
	EmulatorGRPCPort string
}

type GCImageContainer struct {
	ImageContainer
	ProjectID       string
	SetEnvVariables bool
}

// EmulatorConnection is what a test needs to reach a started emulator.
type EmulatorConnection struct {
	// EmulatorAddress is host:port of the main emulator port.
	EmulatorAddress string
	// ClientOptions configure a Google Cloud client for the emulator.
	ClientOptions []option.ClientOption
}
