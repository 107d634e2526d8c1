/*
Copyright 2025 The gyroconv Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package driver defines the contract every code-specific frontend
// implements and the registry the pipeline resolves them from. Each
// driver owns its native format end to end: parsing, mapping to the
// canonical model, and deterministic serialization.
package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/logging"
	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/numerics"
	"github.com/fusionkit/gyroconv/internal/units"
)

// Capabilities declares what a target code can represent, so the
// pipeline can fail (or degrade, in lossy mode) before any output is
// produced.
type Capabilities struct {
	// Squareness is true when the code carries the second sine shaping
	// moment (ζ) natively.
	Squareness bool

	// HigherMoments is true when arbitrary shaping moments beyond
	// triangularity and squareness survive a write.
	HigherMoments bool

	// Apar and Bpar flag electromagnetic field support.
	Apar bool
	Bpar bool

	// Nonlinear is false for codes restricted to linear or quasilinear
	// runs.
	Nonlinear bool

	// MaxSpecies caps the species list (0 for no cap).
	MaxSpecies int

	// Grid describes how the code counts its binormal and parallel
	// grids.
	Grid numerics.GridLayout
}

// Options carries per-call knobs shared by Read and Write.
type Options struct {
	// Tables supplies reference masses and fit settings; nil means the
	// built-in defaults.
	Tables *config.ReferenceTables

	// Logger receives advisory warnings; nil silences them.
	Logger *zap.Logger

	// Lossy lets Write drop features the target cannot represent,
	// logging each drop, instead of returning UnsupportedFeatureError.
	Lossy bool
}

func (o Options) WithDefaults() Options {
	if o.Tables == nil {
		o.Tables = config.DefaultTables()
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger()
	}
	return o
}

// Driver converts between one code's native input deck and the
// canonical model. Implementations must be stateless: all per-call
// state lives in the arguments.
type Driver interface {
	// Name is the registry key, lower case.
	Name() string

	Capabilities() Capabilities

	// DefaultUnits is the simulation-unit system of the code's own
	// normalization convention.
	DefaultUnits() *units.System

	// Read parses a native deck into a canonical model in the canonical
	// normalization. Unrecognized keys become passthrough entries.
	Read(data []byte, opts Options) (*model.CanonicalModel, error)

	// Write renders the model as a native deck. Output is deterministic:
	// the same model yields byte-identical bytes.
	Write(m *model.CanonicalModel, opts Options) ([]byte, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Driver)
)

// Register makes a driver available by name. It panics on a duplicate
// registration, which indicates a programming error in an init path.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	name := d.Name()
	if _, dup := registry[name]; dup {
		panic("driver: Register called twice for " + name)
	}
	registry[name] = d
}

// Get resolves a registered driver, accepting convention aliases is the
// caller's job; names here are exact.
func Get(name string) (Driver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("driver: unknown code %q (registered: %v)", name, namesLocked())
	}
	return d, nil
}

// Names lists registered drivers in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
