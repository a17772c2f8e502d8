// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

// MinMlockLimitKB is the smallest RLIMIT_MEMLOCK under which sealed key
// storage is considered reliable. Below it, key pages may be swappable.
const MinMlockLimitKB = 64

var (
	// secureInitOnce ensures memguard initialization happens only once.
	secureInitOnce      sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// initSecureMemory initializes memguard and checks mlock limits.
func initSecureMemory() {
	secureInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure key storage initialized",
				"mlock_limit_kb", currentMlockLimitKB,
			)
		} else {
			slog.Warn("mlock limit below recommended minimum, key pages may be swappable",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		}
	})
}

// checkMlockLimit queries the kernel for the current mlock resource limit.
// Returns (sufficient, limit in KB). -1 means unlimited.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// APIKey holds a collaborator credential sealed in a memguard enclave.
// The key is encrypted at rest in process memory and only decrypted for
// the moment a client needs it.
type APIKey struct {
	enclave *memguard.Enclave
}

// NewAPIKey seals the given key material. memguard wipes the source buffer,
// so the caller must not retain the string.
func NewAPIKey(key string) (*APIKey, error) {
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	initSecureMemory()
	return &APIKey{enclave: memguard.NewEnclave([]byte(key))}, nil
}

// LoadAPIKey reads a key from the environment, falling back to a mounted
// secrets file (Podman/Kubernetes convention).
func LoadAPIKey(envVar, secretPath string) (*APIKey, error) {
	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		return NewAPIKey(key)
	}

	if secretPath != "" {
		data, err := os.ReadFile(secretPath)
		if err == nil {
			key := strings.TrimSpace(string(data))
			if key != "" {
				slog.Info("Read collaborator API key from secrets file", "path", secretPath)
				return NewAPIKey(key)
			}
		}
	}

	slog.Error("Collaborator API key not found", "env", envVar, "secret_path", secretPath)
	return nil, fmt.Errorf("%w: set %s or mount %s", ErrMissingAPIKey, envVar, secretPath)
}

// Reveal opens the enclave and returns a copy of the key. The locked buffer
// is destroyed before returning; only the copy escapes.
func (k *APIKey) Reveal() (string, error) {
	if k == nil || k.enclave == nil {
		return "", ErrMissingAPIKey
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

// PurgeSecrets wipes all memguard-allocated key material. Call on shutdown.
func PurgeSecrets() {
	memguard.Purge()
}
