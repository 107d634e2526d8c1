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

import "fmt"

// UnsupportedSchemaError reports input that does not parse as the
// code's deck format at all, as opposed to a deck with odd options.
type UnsupportedSchemaError struct {
	Code   string
	Line   int
	Detail string
}

func (e *UnsupportedSchemaError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: not a recognizable input deck: %s", e.Code, e.Line, e.Detail)
	}
	return fmt.Sprintf("%s: not a recognizable input deck: %s", e.Code, e.Detail)
}

// UnrecognizedOptionError reports a key whose value the driver cannot
// interpret, for example an unknown geometry or collision model.
type UnrecognizedOptionError struct {
	Code  string
	Group string
	Key   string
	Value string
}

func (e *UnrecognizedOptionError) Error() string {
	where := e.Key
	if e.Group != "" {
		where = e.Group + "." + e.Key
	}
	return fmt.Sprintf("%s: unrecognized option %s = %q", e.Code, where, e.Value)
}

// UnsupportedFeatureError reports a model feature the target code
// cannot represent. Write returns it before producing any output;
// lossy mode downgrades it to a logged warning.
type UnsupportedFeatureError struct {
	Code    string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s: target cannot represent %s (rerun with lossy conversion to drop it)", e.Code, e.Feature)
}
