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
package netutil

import (
	"errors"
	"net"
	"strconv"
)

// GetLocalIP returns the first non-loopback IPv4 address of the host.
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil {
			return ip.String(), nil
		}
	}
	return "", errors.New("no non-loopback ipv4 address found")
}

// Listen binds a TCP listener on the first free port in
// [basePort, basePort+numPorts). Returns the listener and the bound port.
func Listen(ip string, basePort, numPorts int) (net.Listener, int, error) {
	if numPorts <= 0 {
		return nil, 0, errors.New("no ports in range")
	}
	var err error
	for port := basePort; port < basePort+numPorts; port++ {
		var l net.Listener
		l, err = net.Listen("tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		if err == nil {
			return l, port, nil
		}
	}
	return nil, 0, errors.New("no port available in range")
}
