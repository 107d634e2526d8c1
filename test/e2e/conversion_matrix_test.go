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

package e2e

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fusionkit/gyroconv/internal/driver"
	_ "github.com/fusionkit/gyroconv/internal/driver/all"
	"github.com/fusionkit/gyroconv/internal/model"
	"github.com/fusionkit/gyroconv/internal/pipeline"
)

// A realistic electromagnetic ITG case: shaped surface, squareness,
// three quasineutral species (deuterium, carbon, electrons).
const shapedDeck = `EQUILIBRIUM_MODEL = 2
RMIN = 0.6
RMAJ = 2.8
ZMAG = 0.02
DZMAG = -0.01
SHIFT = -0.15
KAPPA = 1.6
S_KAPPA = 0.3
DELTA = 0.25
S_DELTA = 0.2
ZETA = -0.03
S_ZETA = -0.02
Q = 2.4
S = 1.2
IPCCW = -1
BTCCW = -1
N_FIELD = 3
BETAE_UNIT = 2.0E-3
NONLINEAR_FLAG = 0
N_RADIAL = 32
N_TOROIDAL = 16
N_THETA = 24
N_ENERGY = 8
N_XI = 16
KY = 0.25
DELTA_T = 0.005
MAX_TIME = 80.0
NU_EE = 0.08
N_SPECIES = 3
Z_1 = 1.0
MASS_1 = 1.0
DENS_1 = 0.94
TEMP_1 = 1.1
DLNNDR_1 = 0.8
DLNTDR_1 = 2.6
Z_2 = 6.0
MASS_2 = 6.0
DENS_2 = 0.01
TEMP_2 = 1.1
DLNNDR_2 = 0.8
DLNTDR_2 = 2.6
Z_3 = -1.0
MASS_3 = 2.724e-4
DENS_3 = 1.0
TEMP_3 = 1.0
DLNNDR_3 = 1.0
DLNTDR_3 = 3.0
`

const tol = 1e-8

// expectSameSurface compares the canonical quantities that every code
// in the matrix represents.
func expectSameSurface(got, want *model.CanonicalModel) {
	g, w := got.Primary(), want.Primary()
	Expect(g.Rho).To(BeNumerically("~", w.Rho, tol))
	Expect(g.Rmaj).To(BeNumerically("~", w.Rmaj, tol))
	Expect(g.Q).To(BeNumerically("~", w.Q, tol))
	Expect(g.Shat).To(BeNumerically("~", w.Shat, tol))
	Expect(g.Kappa).To(BeNumerically("~", w.Kappa, tol))
	Expect(g.SKappa).To(BeNumerically("~", w.SKappa, tol))
	Expect(g.Delta()).To(BeNumerically("~", w.Delta(), tol))
	Expect(g.SDelta()).To(BeNumerically("~", w.SDelta(), tol))

	Expect(got.Species.Count()).To(Equal(want.Species.Count()))
	for i, ws := range want.Species.All() {
		gs := got.Species.All()[i]
		Expect(gs.Charge).To(BeNumerically("~", ws.Charge, tol))
		Expect(gs.Mass).To(BeNumerically("~", ws.Mass, ws.Mass*1e-6))
		Expect(gs.Density).To(BeNumerically("~", ws.Density, tol))
		Expect(gs.Temperature).To(BeNumerically("~", ws.Temperature, tol))
		Expect(gs.InverseGradDens).To(BeNumerically("~", ws.InverseGradDens, tol))
		Expect(gs.InverseGradTemp).To(BeNumerically("~", ws.InverseGradTemp, tol))
	}

	Expect(got.Numerics.Beta).To(BeNumerically("~", want.Numerics.Beta, tol))
	Expect(got.Numerics.KyMin).To(BeNumerically("~", want.Numerics.KyMin, tol))
}

// readAs converts the reference deck to code and reads the produced
// deck back into a canonical model.
func readAs(code string, deck []byte) (out []byte, m *model.CanonicalModel) {
	res, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
		SourceCode: "cgyro",
		TargetCode: code,
		Input:      deck,
		Lossy:      true,
	})
	Expect(err).NotTo(HaveOccurred(), "cgyro -> %s", code)

	d, err := driver.Get(code)
	Expect(err).NotTo(HaveOccurred())
	m, err = d.Read(res.Output, driver.Options{})
	Expect(err).NotTo(HaveOccurred(), "reading back %s deck", code)
	return res.Output, m
}

var _ = Describe("Conversion matrix", func() {
	codes := []string{"cgyro", "gene", "gs2", "tglf"}

	decks := map[string][]byte{}
	models := map[string]*model.CanonicalModel{}

	BeforeEach(func() {
		for _, code := range codes {
			deck, m := readAs(code, []byte(shapedDeck))
			decks[code] = deck
			models[code] = m
		}
	})

	for _, src := range []string{"cgyro", "gene", "gs2", "tglf"} {
		for _, dst := range []string{"cgyro", "gene", "gs2", "tglf"} {
			It(fmt.Sprintf("preserves the flux surface through %s -> %s", src, dst), func() {
				res, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
					SourceCode: src,
					TargetCode: dst,
					Input:      decks[src],
					Lossy:      true,
				})
				Expect(err).NotTo(HaveOccurred())

				d, err := driver.Get(dst)
				Expect(err).NotTo(HaveOccurred())
				back, err := d.Read(res.Output, driver.Options{})
				Expect(err).NotTo(HaveOccurred())

				expectSameSurface(back, models[src])
			})
		}
	}

	It("keeps squareness between codes that support it", func() {
		for _, code := range []string{"cgyro", "gene", "tglf"} {
			m := models[code]
			Expect(m.Primary().Zeta()).To(BeNumerically("~", -0.03, tol), code)
			Expect(m.Primary().SZeta()).To(BeNumerically("~", -0.02, tol), code)
		}
	})

	It("drops squareness for gs2 but keeps the rest of the shape", func() {
		m := models["gs2"]
		Expect(m.Primary().Zeta()).To(BeZero())
		Expect(m.Primary().Kappa).To(BeNumerically("~", 1.6, tol))
		Expect(m.Primary().Delta()).To(BeNumerically("~", 0.25, tol))
	})

	It("stays quasineutral through every conversion", func() {
		for _, code := range codes {
			Expect(models[code].Species.ChargeImbalance()).To(
				BeNumerically("~", 0.0, 1e-8), code)
		}
	})

	It("does not drift over repeated round trips", func() {
		deck := decks["gene"]
		for cycle := 0; cycle < 3; cycle++ {
			res, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
				SourceCode: "gene",
				TargetCode: "gs2",
				Input:      deck,
				Lossy:      true,
			})
			Expect(err).NotTo(HaveOccurred())
			res, err = pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
				SourceCode: "gs2",
				TargetCode: "gene",
				Input:      res.Output,
				Lossy:      true,
			})
			Expect(err).NotTo(HaveOccurred())
			deck = res.Output
		}

		d, err := driver.Get("gene")
		Expect(err).NotTo(HaveOccurred())
		final, err := d.Read(deck, driver.Options{})
		Expect(err).NotTo(HaveOccurred())
		expectSameSurface(final, models["gs2"])
	})
})
