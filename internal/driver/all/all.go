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

// Package all registers every built-in driver. Import it for side
// effects wherever the full registry is needed.
package all

import (
	_ "github.com/fusionkit/gyroconv/internal/driver/cgyro"
	_ "github.com/fusionkit/gyroconv/internal/driver/gene"
	_ "github.com/fusionkit/gyroconv/internal/driver/gs2"
	_ "github.com/fusionkit/gyroconv/internal/driver/tglf"
)
