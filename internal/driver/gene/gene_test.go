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

package gene

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/driver"
	"github.com/fusionkit/gyroconv/internal/species"
)

const sampleDeck = `&box
n_spec = 2
nx0 = 16
nky0 = 8
nz0 = 24
nv0 = 16
nw0 = 8
kymin = 0.05
/

&general
nonlinear = .false.
beta = 1.0e-3
bpar = .false.
coll = 0.015
dt_max = 0.03
simtimelim = 300.0
/

&geometry
magn_geometry = 'miller'
trpeps = 0.16666666667
major_R = 1.0
major_Z = 0.0
minor_r = 0.33333333333
kappa = 1.4
s_kappa = 0.2
delta = 0.1
s_delta = 0.05
q0 = 2.0
shat = 1.0
amhd = 0.0
sign_Ip_CW = 1
sign_Bt_CW = 1
/

&species
name = 'electron'
mass = 2.724e-4
charge = -1
temp = 1.0
dens = 1.0
omt = 9.0
omn = 3.0
/
&species
name = 'deuterium'
mass = 1.0
charge = 1
temp = 1.0
dens = 1.0
omt = 6.0
omn = 3.0
/

&in_out
diagdir = '/tmp/run'
/
`

func Test_Read_sampleDeck(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	g := m.Primary()
	// minor_r = 1/3 of Lref, so the aspect ratio is 3 and the surface
	// sits at r/a = 0.5.
	assert.InDelta(t, 3.0, g.Rmaj, 1e-9)
	assert.InDelta(t, 0.5, g.Rho, 1e-9)
	assert.Equal(t, 1.4, g.Kappa)
	assert.Equal(t, 2.0, g.Q)

	// Major-radius gradients become minor-radius gradients.
	e := m.Species.Electron()
	require.NotNil(t, e)
	assert.InDelta(t, 3.0, e.InverseGradTemp, 1e-9)
	assert.InDelta(t, 1.0, e.InverseGradDens, 1e-9)
	assert.InDelta(t, 0.005, e.Collisionality, 1e-9)

	assert.InDelta(t, 0.05, m.Numerics.KyMin, 1e-12)
	assert.InDelta(t, 0.09, m.Numerics.DeltaT, 1e-9)
	assert.InDelta(t, 900.0, m.Numerics.MaxTime, 1e-6)
	assert.True(t, m.Numerics.Apar)
	assert.False(t, m.Numerics.Nonlinear)
}

func Test_Read_rejectsNonMillerGeometry(t *testing.T) {
	var d Driver
	deck := `&geometry
magn_geometry = 'tracer_efit'
minor_r = 0.3
/
`
	_, err := d.Read([]byte(deck), driver.Options{})
	var opt *driver.UnrecognizedOptionError
	require.ErrorAs(t, err, &opt)
	assert.Equal(t, "magn_geometry", opt.Key)
}

func Test_Read_requiresMinorRadius(t *testing.T) {
	var d Driver
	deck := `&geometry
magn_geometry = 'miller'
trpeps = 0.16
/
`
	_, err := d.Read([]byte(deck), driver.Options{})
	var schema *driver.UnsupportedSchemaError
	require.ErrorAs(t, err, &schema)
}

func Test_RoundTrip_preservesModel(t *testing.T) {
	var d Driver
	m1, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	out, err := d.Write(m1, driver.Options{})
	require.NoError(t, err)

	m2, err := d.Read(out, driver.Options{})
	require.NoError(t, err)

	assert.InDelta(t, m1.Primary().Rho, m2.Primary().Rho, 1e-9)
	assert.InDelta(t, m1.Primary().Rmaj, m2.Primary().Rmaj, 1e-9)
	assert.InDelta(t, m1.Primary().Kappa, m2.Primary().Kappa, 1e-12)
	assert.InDelta(t, m1.Numerics.KyMin, m2.Numerics.KyMin, 1e-12)
	assert.InDelta(t, m1.Numerics.DeltaT, m2.Numerics.DeltaT, 1e-12)
	for i, s1 := range m1.Species.All() {
		s2 := m2.Species.All()[i]
		assert.Equal(t, s1.Name, s2.Name)
		assert.InDelta(t, s1.InverseGradTemp, s2.InverseGradTemp, 1e-9)
	}
}

func Test_Write_keepsForeignGroups(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	raw, ok := m.Passthrough.Get("gene.in_out.diagdir")
	require.True(t, ok)
	assert.Equal(t, "'/tmp/run'", raw)

	out, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "&in_out\n")
	assert.Contains(t, string(out), "diagdir = '/tmp/run'\n")
}

func Test_Write_isDeterministic(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)

	a, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	b, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func Test_RoundTrip_hyperdiffusion(t *testing.T) {
	deck := strings.Replace(sampleDeck, "coll = 0.015", "coll = 0.015\nhyp_z = 0.25", 1)

	var d Driver
	m, err := d.Read([]byte(deck), driver.Options{})
	require.NoError(t, err)
	assert.Equal(t, 0.25, m.Numerics.HyperStrength)
	assert.Equal(t, 4, m.Numerics.HyperOrder)

	out, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "hyp_z = 2.5000000000E-01\n")

	m2, err := d.Read(out, driver.Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, m2.Numerics.HyperStrength, 1e-12)
	assert.Equal(t, 4, m2.Numerics.HyperOrder)
}

func Test_Write_omitsHypZWhenUnset(t *testing.T) {
	var d Driver
	m, err := d.Read([]byte(sampleDeck), driver.Options{})
	require.NoError(t, err)
	require.Zero(t, m.Numerics.HyperStrength)

	out, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hyp_z")
}

func Test_Read_collisionalityFromUnits(t *testing.T) {
	deck := strings.Replace(sampleDeck, "coll = 0.015\n", "", 1)
	deck += `
&units
tref = 2.0
nref = 3.0
lref = 1.65
mref = 2.0
/
`
	var d Driver
	m, err := d.Read([]byte(deck), driver.Options{})
	require.NoError(t, err)

	// nu_ee from the physical references, normalized by Lref/cref the
	// way GENE defines coll, then converted to minor-radius units.
	nu := species.ElectronCollisionFrequency(config.DefaultTables(), 3.0e19, 2.0e3)
	cref := math.Sqrt(2.0e3 * config.ElementaryCharge / (2.0 * config.ProtonMass))
	want := nu * 1.65 / cref * 0.33333333333

	e := m.Species.Electron()
	require.NotNil(t, e)
	assert.InEpsilon(t, want, e.Collisionality, 1e-9)

	// The &units group is not consumed by the mapping and must survive
	// a round trip verbatim.
	_, ok := m.Passthrough.Get("gene.units.tref")
	assert.True(t, ok)
	out, err := d.Write(m, driver.Options{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "&units\n")
	assert.Contains(t, string(out), "tref = 2.0\n")
}

func Test_Read_deckCollWinsOverUnits(t *testing.T) {
	deck := sampleDeck + `
&units
tref = 2.0
nref = 3.0
lref = 1.65
/
`
	var d Driver
	m, err := d.Read([]byte(deck), driver.Options{})
	require.NoError(t, err)

	e := m.Species.Electron()
	require.NotNil(t, e)
	assert.InDelta(t, 0.005, e.Collisionality, 1e-9)
}
