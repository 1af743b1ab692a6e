// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func fastRetry(max int) SendOption {
	return SendRetry(
		RetryMax(max),
		RetryBackoff(&backoff.ConstantBackOff{Interval: time.Millisecond}))
}

func TestSendAcceptedCodes(t *testing.T) {
	require := require.New(t)

	s := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(499)
		}))
	defer s.Close()

	_, err := Get(s.URL)
	require.Error(err)
	require.True(IsStatus(err, 499))

	resp, err := Get(s.URL, SendAcceptedCodes(200, 499))
	require.NoError(err)
	resp.Body.Close()
}

func TestSendRetryOn5XX(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch calls.Inc() {
			case 1:
				w.WriteHeader(http.StatusServiceUnavailable)
			case 2:
				w.WriteHeader(http.StatusBadGateway)
			default:
				w.WriteHeader(http.StatusOK)
			}
		}))
	defer s.Close()

	resp, err := Get(s.URL, fastRetry(3))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(int32(3), calls.Load())
}

func TestSendRetryBudgetExhausted(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Inc()
			w.WriteHeader(http.StatusInternalServerError)
		}))
	defer s.Close()

	_, err := Get(s.URL, fastRetry(2))
	require.Error(err)
	require.True(IsStatus(err, http.StatusInternalServerError))
	require.Equal(int32(2), calls.Load())
}

func TestSendNoRetryOn4XX(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls.Inc()
			w.WriteHeader(http.StatusNotFound)
		}))
	defer s.Close()

	_, err := Get(s.URL, fastRetry(3))
	require.Error(err)
	require.True(IsNotFound(err))
	require.Equal(int32(1), calls.Load())
}

func TestSendNetworkError(t *testing.T) {
	require := require.New(t)

	_, err := Get("http://127.0.0.1:1")
	require.Error(err)
	require.True(IsNetworkError(err))
}
