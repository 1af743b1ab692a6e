// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package configutil provides an interface for loading and validating YAML
// configuration, with support for a chain of base configurations via an
// `extends` key.
package configutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when a configuration extends chain contains a cycle.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// Extends describes the optional base configuration a file inherits from.
type Extends struct {
	Extends string `yaml:"extends"`
}

// ValidationError wraps all validator errors encountered while resolving a
// configuration.
type ValidationError struct {
	errForField map[string]validator.ErrorArray
}

// ErrForField returns the validation errors for the given field.
func (e ValidationError) ErrForField(name string) validator.ErrorArray {
	return e.errForField[name]
}

func (e ValidationError) Error() string {
	var w []byte
	for f, errs := range e.errForField {
		w = append(w, fmt.Sprintf("field %q: %s\n", f, errs)...)
	}
	return string(w)
}

// Load reads and merges the configuration chain rooted at filename into
// config, then validates the merged result.
func Load(filename string, config interface{}) error {
	filenames, err := resolveExtends(filename, readExtendsFromYAML)
	if err != nil {
		return err
	}
	return loadFiles(config, filenames)
}

// readExtendsFromYAML returns the `extends` target declared in the given
// YAML file, or empty if none.
func readExtendsFromYAML(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read config: %s", err)
	}
	var cfg Extends
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("unmarshal config: %s", err)
	}
	return cfg.Extends, nil
}

// resolveExtends returns the configuration chain for filename, base files
// first. Relative extends targets are resolved against the directory of the
// file which declares them.
func resolveExtends(
	filename string, readExtends func(string) (string, error)) ([]string, error) {

	seen := make(map[string]struct{})
	var filenames []string
	for filename != "" {
		if _, ok := seen[filename]; ok {
			return nil, ErrCycleRef
		}
		seen[filename] = struct{}{}
		filenames = append([]string{filename}, filenames...)

		next, err := readExtends(filename)
		if err != nil {
			return nil, err
		}
		if next != "" && !filepath.IsAbs(next) {
			next = filepath.Join(filepath.Dir(filename), next)
		}
		filename = next
	}
	return filenames, nil
}

// loadFiles loads a list of files, deep-merging them in order, and validates
// the merged result exactly once.
func loadFiles(config interface{}, filenames []string) error {
	for _, f := range filenames {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read config: %s", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("unmarshal config: %s", err)
		}
	}
	if err := validator.Validate(config); err != nil {
		errs, ok := err.(validator.ErrorMap)
		if !ok {
			return fmt.Errorf("validate config: %s", err)
		}
		verr := ValidationError{make(map[string]validator.ErrorArray)}
		for f, errArr := range errs {
			verr.errForField[f] = errArr
		}
		return verr
	}
	return nil
}
