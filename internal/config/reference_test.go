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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTablesAreValid(t *testing.T) {
	tables := DefaultTables()
	require.NoError(t, tables.Validate())

	d, ok := tables.MassOf("deuterium")
	require.True(t, ok)
	assert.InEpsilon(t, DeuteriumMass, d.Mass, 1e-12)
	assert.Equal(t, 1.0, d.Charge)

	e, ok := tables.MassOf("electron")
	require.True(t, ok)
	assert.InEpsilon(t, ElectronMass, e.Mass, 1e-12)

	assert.Equal(t, CoulombLogNRL, tables.CoulombLog)
	assert.False(t, tables.AlignColumns)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
masses:
  lithium: {mass: 1.1525801e-26, charge: 3}
fitTolerance: 1.0e-2
alignColumns: true
`), 0o644))

	tables, err := Load(path)
	require.NoError(t, err)

	// New species added, defaults retained.
	li, ok := tables.MassOf("lithium")
	require.True(t, ok)
	assert.Equal(t, 3.0, li.Charge)
	_, ok = tables.MassOf("deuterium")
	assert.True(t, ok)

	assert.Equal(t, 1.0e-2, tables.FitTolerance)
	assert.True(t, tables.AlignColumns)
	// Untouched fields keep their defaults.
	assert.Equal(t, 200, tables.FitMaxIterations)
	assert.Equal(t, 11, tables.FloatDigits)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	tables, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, tables.Validate())
}

func TestLoadRejectsInvalidOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fitSamples: 8\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "fitSamples")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ReferenceTables)
		wantErr string
	}{
		{"negative mass", func(t *ReferenceTables) {
			t.Masses["junk"] = SpeciesMass{Mass: -1, Charge: 1}
		}, "must be > 0"},
		{"unknown coulomb log", func(t *ReferenceTables) {
			t.CoulombLog = "braginskii"
		}, "coulombLog"},
		{"zero tolerance", func(t *ReferenceTables) {
			t.FitTolerance = 0
		}, "fitTolerance"},
		{"digits out of range", func(t *ReferenceTables) {
			t.FloatDigits = 30
		}, "floatDigits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tables := DefaultTables()
			tc.mutate(tables)
			assert.ErrorContains(t, tables.Validate(), tc.wantErr)
		})
	}
}

func TestFitOptionsMapping(t *testing.T) {
	tables := DefaultTables()
	tables.FitTolerance = 5e-4
	tables.FitSamples = 128

	opts := tables.FitOptions()
	assert.Equal(t, 128, opts.Samples)
	assert.Equal(t, 200, opts.MaxIterations)
	assert.Equal(t, 5e-4, opts.Tolerance)
}
