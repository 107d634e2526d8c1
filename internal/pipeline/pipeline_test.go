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

package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fusionkit/gyroconv/internal/config"
	"github.com/fusionkit/gyroconv/internal/driver"
	_ "github.com/fusionkit/gyroconv/internal/driver/all"
	"github.com/fusionkit/gyroconv/internal/geometry"
	"github.com/fusionkit/gyroconv/internal/pipeline"
)

// A circular two-species CGYRO case: q = 2, shat = 1, kappa = 1,
// R0/a = 3, r/a = 0.5.
const cgyroDeck = `EQUILIBRIUM_MODEL = 2
RMIN = 0.5
RMAJ = 3.0
KAPPA = 1.0
DELTA = 0.0
Q = 2.0
S = 1.0
IPCCW = -1
BTCCW = -1
N_FIELD = 2
BETAE_UNIT = 1.0E-3
NONLINEAR_FLAG = 0
N_RADIAL = 16
N_TOROIDAL = 8
N_THETA = 24
N_ENERGY = 8
N_XI = 16
KY = 0.3
DELTA_T = 0.01
MAX_TIME = 100.0
NU_EE = 0.05
N_SPECIES = 2
Z_1 = 1.0
MASS_1 = 1.0
DENS_1 = 1.0
TEMP_1 = 1.0
DLNNDR_1 = 1.0
DLNTDR_1 = 3.0
Z_2 = -1.0
MASS_2 = 2.724e-4
DENS_2 = 1.0
TEMP_2 = 1.0
DLNNDR_2 = 1.0
DLNTDR_2 = 3.0
`

var _ = Describe("Pipeline", func() {
	var p *pipeline.Pipeline

	BeforeEach(func() {
		p = pipeline.New(nil, nil)
	})

	It("starts idle and finishes done", func() {
		Expect(p.State()).To(Equal(pipeline.StateIdle))

		res, err := p.Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gene",
			Input:      []byte(cgyroDeck),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.State()).To(Equal(pipeline.StateDone))
		Expect(res.Output).NotTo(BeEmpty())
		Expect(res.Model.Species.Count()).To(Equal(2))
	})

	It("fails on an unknown source code", func() {
		_, err := p.Convert(context.Background(), pipeline.Request{
			SourceCode: "gyro2000",
			TargetCode: "gene",
			Input:      []byte(cgyroDeck),
		})
		Expect(err).To(HaveOccurred())
		Expect(p.State()).To(Equal(pipeline.StateFailed))
	})

	It("fails without partial output on unparsable input", func() {
		res, err := p.Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gs2",
			Input:      []byte("not a deck at all"),
		})
		Expect(err).To(HaveOccurred())
		Expect(res).To(BeNil())
		Expect(p.State()).To(Equal(pipeline.StateFailed))

		var schema *driver.UnsupportedSchemaError
		Expect(errors.As(err, &schema)).To(BeTrue())
		Expect(schema.Code).To(Equal("cgyro"))
	})

	It("respects a canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Convert(ctx, pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gene",
			Input:      []byte(cgyroDeck),
		})
		Expect(err).To(MatchError(context.Canceled))
	})
})

// millerContour samples a Miller surface in metres.
func millerContour(points int, rmaj, rho, kappa, delta float64) *pipeline.ShapeTrace {
	tr := &pipeline.ShapeTrace{
		R: make([]float64, points),
		Z: make([]float64, points),
	}
	for i := 0; i < points; i++ {
		theta := 2 * math.Pi * float64(i) / float64(points)
		tr.R[i] = rmaj + rho*math.Cos(theta+math.Asin(delta)*math.Sin(theta))
		tr.Z[i] = kappa * rho * math.Sin(theta)
	}
	return tr
}

var _ = Describe("Shape trace fitting", func() {
	// r = 0.4 m at the deck's rho = 0.5, so the LCFS minor radius is
	// 0.8 m and R0 lands at 2.2/0.8 = 2.75.
	trace := millerContour(720, 2.2, 0.4, 1.3, 0.2)

	It("replaces the deck's shape with the fitted contour", func() {
		res, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gene",
			Input:      []byte(cgyroDeck),
			ShapeTrace: trace,
		})
		Expect(err).NotTo(HaveOccurred())

		d, err := driver.Get("gene")
		Expect(err).NotTo(HaveOccurred())
		back, err := d.Read(res.Output, driver.Options{})
		Expect(err).NotTo(HaveOccurred())

		g := back.Primary()
		Expect(g.Kappa).To(BeNumerically("~", 1.3, 1e-3))
		Expect(g.Delta()).To(BeNumerically("~", 0.2, 1e-3))
		Expect(g.Rmaj).To(BeNumerically("~", 2.75, 1e-3))
		// Radial quantities still come from the deck.
		Expect(g.Q).To(BeNumerically("~", 2.0, 1e-9))
		Expect(g.Shat).To(BeNumerically("~", 1.0, 1e-9))
	})

	It("enforces the configured fit tolerance", func() {
		tables := config.DefaultTables()
		tables.FitTolerance = 1e-15

		_, err := pipeline.New(nil, tables).Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gene",
			Input:      []byte(cgyroDeck),
			ShapeTrace: trace,
		})
		Expect(err).To(HaveOccurred())

		var fitErr *geometry.GeometryFitError
		Expect(errors.As(err, &fitErr)).To(BeTrue())
	})

	It("rejects a degenerate contour", func() {
		_, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gene",
			Input:      []byte(cgyroDeck),
			ShapeTrace: &pipeline.ShapeTrace{R: []float64{1, 2}, Z: []float64{0, 0}},
		})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Cross-code conversion", func() {
	targets := []string{"cgyro", "gene", "gs2", "tglf"}

	for _, target := range targets {
		It(fmt.Sprintf("preserves dimensionless parameters through cgyro -> %s", target), func() {
			res, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
				SourceCode: "cgyro",
				TargetCode: target,
				Input:      []byte(cgyroDeck),
				Lossy:      true,
			})
			Expect(err).NotTo(HaveOccurred())

			// Read the produced deck back through its own driver; the
			// recovered canonical model must agree with the source's.
			d, err := driver.Get(target)
			Expect(err).NotTo(HaveOccurred())
			back, err := d.Read(res.Output, driver.Options{})
			Expect(err).NotTo(HaveOccurred())

			src := res.Model.Primary()
			got := back.Primary()
			Expect(got.Q).To(BeNumerically("~", src.Q, 1e-9))
			Expect(got.Shat).To(BeNumerically("~", src.Shat, 1e-9))
			Expect(got.Kappa).To(BeNumerically("~", src.Kappa, 1e-9))
			Expect(got.Rmaj).To(BeNumerically("~", src.Rmaj, 1e-9))
			Expect(got.Rho).To(BeNumerically("~", src.Rho, 1e-9))

			Expect(back.Species.Count()).To(Equal(res.Model.Species.Count()))
			for i, want := range res.Model.Species.All() {
				s := back.Species.All()[i]
				Expect(s.InverseGradTemp).To(BeNumerically("~", want.InverseGradTemp, 1e-9))
				Expect(s.InverseGradDens).To(BeNumerically("~", want.InverseGradDens, 1e-9))
				Expect(s.Temperature).To(BeNumerically("~", want.Temperature, 1e-9))
			}

			Expect(back.Numerics.KyMin).To(BeNumerically("~", res.Model.Numerics.KyMin, 1e-9))
			Expect(back.Numerics.Beta).To(BeNumerically("~", res.Model.Numerics.Beta, 1e-9))
		})
	}

	It("carries source passthrough only back to the source code", func() {
		input := cgyroDeck + "AMP = 1e-4\n"
		res, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "gene",
			Input:      []byte(input),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Output)).NotTo(ContainSubstring("AMP"))

		back, err := pipeline.New(nil, nil).Convert(context.Background(), pipeline.Request{
			SourceCode: "cgyro",
			TargetCode: "cgyro",
			Input:      []byte(input),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(back.Output)).To(ContainSubstring("AMP = 1e-4"))
	})
})

var _ = Describe("ConvertAll", func() {
	It("converts a batch with a bounded pool, in order", func() {
		items := []pipeline.BatchItem{
			{Name: "a", Request: pipeline.Request{SourceCode: "cgyro", TargetCode: "gene", Input: []byte(cgyroDeck)}},
			{Name: "bad", Request: pipeline.Request{SourceCode: "cgyro", TargetCode: "gs2", Input: []byte("garbage")}},
			{Name: "c", Request: pipeline.Request{SourceCode: "cgyro", TargetCode: "tglf", Input: []byte(cgyroDeck), Lossy: true}},
		}
		results := pipeline.ConvertAll(context.Background(), items, 2, nil, nil)
		Expect(results).To(HaveLen(3))
		Expect(results[0].Name).To(Equal("a"))
		Expect(results[0].Err).NotTo(HaveOccurred())
		Expect(results[0].Output).NotTo(BeEmpty())
		Expect(results[1].Err).To(HaveOccurred())
		Expect(results[2].Err).NotTo(HaveOccurred())
	})
})
