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

package driver

import (
	"fmt"
	"math"
	"sort"

	"github.com/fusionkit/gyroconv/internal/config"
)

// GuessSpeciesName matches charge number and mass (in deuterium masses)
// against the reference tables. Decks in the GACODE family carry no
// species names, only charge and mass columns. Falls back to a
// positional name when no table entry is within 2% in mass.
func GuessSpeciesName(tables *config.ReferenceTables, charge, massRel float64, index int) string {
	if charge < 0 {
		return "electron"
	}
	dm, ok := tables.MassOf("deuterium")
	if !ok {
		return fmt.Sprintf("ion%d", index)
	}
	massSI := massRel * dm.Mass

	best := ""
	bestErr := math.Inf(1)
	names := make([]string, 0, len(tables.Masses))
	for name := range tables.Masses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := tables.Masses[name]
		if m.Charge < 0 {
			continue
		}
		relErr := math.Abs(massSI-m.Mass) / m.Mass
		if relErr < bestErr {
			best, bestErr = name, relErr
		}
	}
	if bestErr <= 0.02 {
		return best
	}
	return fmt.Sprintf("ion%d", index)
}
