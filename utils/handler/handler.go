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

// Package handler provides an error-returning http handler wrapper with
// status-coded errors.
package handler

import (
	"fmt"
	"net/http"

	"github.com/dung-h/LikeTorrent-242/utils/log"
)

// ErrHandler defines an http handler which returns an error.
type ErrHandler func(http.ResponseWriter, *http.Request) error

// Wrap converts an ErrHandler into an http.HandlerFunc, writing the error's
// status and message to the response.
func Wrap(h ErrHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			status := http.StatusInternalServerError
			msg := err.Error()
			if herr, ok := err.(*Error); ok {
				status = herr.status
			}
			if status >= 500 {
				log.With("path", r.URL.Path).Errorf("Handler error: %s", msg)
			}
			http.Error(w, msg, status)
		}
	}
}

// Error is an error with an associated http status.
type Error struct {
	status int
	msg    string
}

// Errorf creates a new Error with defaults status 500.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		status: http.StatusInternalServerError,
		msg:    fmt.Sprintf(format, args...),
	}
}

// Status sets a custom status on e.
func (e *Error) Status(s int) *Error {
	e.status = s
	return e
}

// GetStatus returns the error status.
func (e *Error) GetStatus() int {
	return e.status
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error %d: %s", e.status, e.msg)
}
