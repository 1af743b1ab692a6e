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

// Package httputil provides wrappers around the stdlib http client with
// sane defaults, retries, and typed errors.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// StatusError occurs if an HTTP response has an unexpected status code.
type StatusError struct {
	Method       string
	URL          string
	Status       int
	ResponseDump string
}

// NewStatusError returns a new StatusError.
func NewStatusError(resp *http.Response) StatusError {
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	respDump := string(respBytes)
	if err != nil {
		respDump = fmt.Sprintf("failed to dump response: %s", err)
	}
	return StatusError{
		Method:       resp.Request.Method,
		URL:          resp.Request.URL.String(),
		Status:       resp.StatusCode,
		ResponseDump: respDump,
	}
}

func (e StatusError) Error() string {
	if e.ResponseDump == "" {
		return fmt.Sprintf("server %s %s: %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("server %s %s: %d: %s", e.Method, e.URL, e.Status, e.ResponseDump)
}

// IsStatus returns true if err is a StatusError of the given status.
func IsStatus(err error, status int) bool {
	statusErr, ok := err.(StatusError)
	return ok && statusErr.Status == status
}

// IsNotFound returns true if err is a "404 not found" StatusError.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// NetworkError occurs on any Send error which occurred while attempting to
// send the HTTP request, e.g. the given host is unresponsive.
type NetworkError struct {
	err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.err)
}

// IsNetworkError returns true if err is a NetworkError.
func IsNetworkError(err error) bool {
	_, ok := err.(NetworkError)
	return ok
}

type sendOptions struct {
	body          io.Reader
	timeout       time.Duration
	acceptedCodes map[int]bool
	headers       map[string]string

	retry struct {
		enabled bool
		max     int
		backoff backoff.BackOff
	}
}

// SendOption allows overriding defaults for the Send function.
type SendOption func(*sendOptions)

// SendNoop returns a no-op option.
func SendNoop() SendOption {
	return func(o *sendOptions) {}
}

// SendBody specifies a body for http request.
func SendBody(body io.Reader) SendOption {
	return func(o *sendOptions) { o.body = body }
}

// SendTimeout specifies timeout for http request.
func SendTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = timeout }
}

// SendHeaders specifies headers for http request.
func SendHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) { o.headers = headers }
}

// SendAcceptedCodes specifies accepted codes for http request.
func SendAcceptedCodes(codes ...int) SendOption {
	m := make(map[int]bool)
	for _, c := range codes {
		m[c] = true
	}
	return func(o *sendOptions) { o.acceptedCodes = m }
}

// RetryOption allows overriding defaults for the SendRetry option.
type RetryOption func(*sendOptions)

// RetryMax sets the max number of attempts, counting the first one.
func RetryMax(max int) RetryOption {
	return func(o *sendOptions) { o.retry.max = max }
}

// RetryBackoff sets the backoff policy between retries.
func RetryBackoff(b backoff.BackOff) RetryOption {
	return func(o *sendOptions) { o.retry.backoff = b }
}

// SendRetry will we retry the request on network / 5XX errors.
func SendRetry(opts ...RetryOption) SendOption {
	return func(o *sendOptions) {
		o.retry.enabled = true
		for _, opt := range opts {
			opt(o)
		}
	}
}

// Send sends an HTTP request.
func Send(method, url string, opts ...SendOption) (*http.Response, error) {
	o := &sendOptions{
		timeout:       60 * time.Second,
		acceptedCodes: map[int]bool{http.StatusOK: true},
	}
	o.retry.max = 3
	o.retry.backoff = &backoff.ConstantBackOff{Interval: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(o)
	}

	var resp *http.Response
	var err error
	o.retry.backoff.Reset()
	for attempt := 0; ; attempt++ {
		resp, err = send(method, url, o)
		if err == nil && !shouldRetry(resp, o) {
			break
		}
		if !o.retry.enabled || attempt+1 >= o.retry.max {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		d := o.retry.backoff.NextBackOff()
		if d == backoff.Stop {
			break
		}
		time.Sleep(d)
	}
	if err != nil {
		return nil, err
	}
	if !o.acceptedCodes[resp.StatusCode] {
		return nil, NewStatusError(resp)
	}
	return resp, nil
}

// Get sends a GET http request.
func Get(url string, opts ...SendOption) (*http.Response, error) {
	return Send("GET", url, opts...)
}

// Post sends a POST http request.
func Post(url string, opts ...SendOption) (*http.Response, error) {
	return Send("POST", url, opts...)
}

// Delete sends a DELETE http request.
func Delete(url string, opts ...SendOption) (*http.Response, error) {
	return Send("DELETE", url, opts...)
}

func send(method, url string, o *sendOptions) (*http.Response, error) {
	req, err := http.NewRequest(method, url, o.body)
	if err != nil {
		return nil, fmt.Errorf("new request: %s", err)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{Timeout: o.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, NetworkError{err}
	}
	return resp, nil
}

func shouldRetry(resp *http.Response, o *sendOptions) bool {
	return o.retry.enabled && resp.StatusCode >= 500 && !o.acceptedCodes[resp.StatusCode]
}
