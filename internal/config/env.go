// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "os"

// ReadOSRuntimeEnv builds an Env from the current process environment.
func ReadOSRuntimeEnv() (Env, error) {
	return ReadEnv(os.Getenv)
}
