// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import "net"

// NormalizeAddress returns addr as host:port, adding defaultPort when addr
// has none.  An address that is invalid even with a port added returns the
// original parse error.
func NormalizeAddress(addr string, defaultPort string) (string, error) {
	host, port, origErr := net.SplitHostPort(addr)
	if origErr == nil {
		return net.JoinHostPort(host, port), nil
	}
	addr = net.JoinHostPort(addr, defaultPort)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", origErr
	}
	return addr, nil
}

// NormalizeAddresses normalizes every address with the given default port
// and drops duplicates, keeping the first occurrence.
func NormalizeAddresses(addrs []string, defaultPort string) ([]string, error) {
	normalized := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		n, err := NormalizeAddress(addr, defaultPort)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}
	return normalized, nil
}
