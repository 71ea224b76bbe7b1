package platform

import (
	"fmt"
	"runtime"
)

// SupportedOS represents supported operating systems
type SupportedOS string

const (
	Linux   SupportedOS = "linux"
	Windows SupportedOS = "windows"
)

// Capabilities describes what the device service can do on this host
type Capabilities struct {
	OS        SupportedOS `json:"os"`
	Backend   string      `json:"backend"`
	Mutations bool        `json:"mutations"`
}

// GetOS returns the current operating system
func GetOS() SupportedOS {
	return SupportedOS(runtime.GOOS)
}

// IsSupported returns true if the current OS is supported
func IsSupported() bool {
	os := GetOS()
	return os == Linux || os == Windows
}

// ValidateSupport returns an error if the current OS is not supported
func ValidateSupport() error {
	if !IsSupported() {
		return fmt.Errorf("unsupported operating system: %s. Supported: linux (udisks2), windows (wmi, read-only)", runtime.GOOS)
	}
	return nil
}

// Describe reports the device service backend for the given OS.
// Only UDisks2 can perform privileged mutations.
func Describe(os SupportedOS) Capabilities {
	switch os {
	case Linux:
		return Capabilities{OS: os, Backend: "udisks2", Mutations: true}
	case Windows:
		return Capabilities{OS: os, Backend: "wmi", Mutations: false}
	default:
		return Capabilities{OS: os, Backend: "none", Mutations: false}
	}
}
