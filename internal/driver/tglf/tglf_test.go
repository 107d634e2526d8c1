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

package tglf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusionkit/gyroconv/internal/driver"
)

const sampleDeck = `# input.tglf
UNITS = CGYRO
GEOMETRY_FLAG = 1
RMIN_LOC = 0.5
RMAJ_LOC = 3.0
KAPPA_LOC = 1.0
Q_LOC = 2.0
Q_PRIME_LOC = 16.0
P_PRIME_LOC = 0.0
SIGN_BT = 1
SIGN_IT = 1
BETAE = 1.0E-3
USE_BPER = T
USE_BPAR = F
KY = 0.3
NKY = 12
NXGRID = 16
NBASIS_MAX = 4
XNUE = 0.05
ZEFF = 1.0
NS = 2
ZS_1 = -1.0
MASS_1 = 2.724e-4
AS_1 = 1.0
TAUS_1 = 1.0
RLNS_1 = 1.0
RLTS_1 = 3.0
ZS_2 = 1.0
MASS_2 = 1.0
AS_2 = 1.0
TAUS_2 = 1.0
RLNS_2 = 1.0
RLTS_2 = 2.0
SAT_RULE = 2
`

func Test_Read_sampleDeck(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	g := m.Primary()
	assert.Equal(t, 0.5, g.Rho)
	assert.Equal(t, 2.0, g.Q)
	// Q_PRIME = shat (q/r)^2, so shat = 16 / 16 = 1.
	assert.InDelta(t, 1.0, g.Shat, 1e-12)

	require.Equal(t, 2, m.Species.Count())
	assert.Equal(t, "electron", m.Species.All()[0].Name)
	assert.Equal(t, "deuterium", m.Species.All()[1].Name)

	assert.True(t, m.Numerics.Apar)
	assert.False(t, m.Numerics.Bpar)
	assert.False(t, m.Numerics.Nonlinear)
	assert.Equal(t, 12, m.Numerics.NKy)

	bunit := g.BunitOverB0()
	assert.InDelta(t, 1.0e-3*bunit*bunit, m.Numerics.Beta, 1e-12)
	assert.InDelta(t, 0.3*bunit, m.Numerics.KyMin, 1e-12)
}

func Test_Read_rejectsNonMillerGeometry(t *testing.T) {
	var d Driver
	_, err := d.Read([]byte("GEOMETRY_FLAG = 0\nNS = 2\n"), driver.Options{})
	var opt *driver.UnrecognizedOptionError
	require.ErrorAs(t, err, &opt)
	assert.Equal(t, "GEOMETRY_FLAG", opt.Key)
}

func Test_RoundTrip_preservesModel(t *testing.T) {
	var d Driver
	m1, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	out, err := d.Write(m1, driver.Options{})
	require.NoError(t, err)

	m2, err := d.Read(out, driver.Options{})
	require.NoError(t, err)

	assert.InDelta(t, m1.Primary().Shat, m2.Primary().Shat, 1e-10)
	assert.InDelta(t, m1.Primary().BetaPrime, m2.Primary().BetaPrime, 1e-10)
	assert.InDelta(t, m1.Numerics.KyMin, m2.Numerics.KyMin, 1e-12)
	assert.InDelta(t, m1.Species.Electron().Collisionality,
		m2.Species.Electron().Collisionality, 1e-12)
}

func Test_Write_passthroughAndZeffVerbatim(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	raw, ok := m.Passthrough.Get("tglf.sat_rule")
	require.True(t, ok)
	assert.Equal(t, "2", raw)

	out, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "SAT_RULE = 2\n")
	// The deck's own ZEFF wins over the derived value.
	assert.Contains(t, string(out), "ZEFF = 1.0\n")
}

func Test_Write_refusesNonlinearModel(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)
	m.Numerics.Nonlinear = true
	m.Numerics.KyMin = 0.1

	_, err = d.Write(m, driver.Options{})
	var feat *driver.UnsupportedFeatureError
	require.ErrorAs(t, err, &feat)

	// Lossy mode downgrades the run instead.
	out, werr := d.Write(m, driver.Options{Lossy: true})
	require.NoError(t, werr)
	assert.NotEmpty(t, out)
}

func Test_Write_capsParallelGrid(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)
	m.Numerics.NTheta = 64

	out, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "NXGRID = 16\n")
}
