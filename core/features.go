// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package core

import "fmt"

// OutputFeatures distinguishes plain outputs from mined rewards.
type OutputFeatures uint8

const (
	// OutputPlain is a regular output.
	OutputPlain OutputFeatures = 0

	// OutputCoinbase is a block reward, spendable only after maturity.
	OutputCoinbase OutputFeatures = 1
)

var outputFeatureNames = map[OutputFeatures]string{
	OutputPlain:    "Plain",
	OutputCoinbase: "Coinbase",
}

// String returns the feature name used on the wire.
func (f OutputFeatures) String() string {
	if s, ok := outputFeatureNames[f]; ok {
		return s
	}
	return fmt.Sprintf("OutputFeatures(%d)", uint8(f))
}

// MarshalText encodes the feature name.
func (f OutputFeatures) MarshalText() ([]byte, error) {
	if _, ok := outputFeatureNames[f]; !ok {
		return nil, fmt.Errorf("unknown output features %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText decodes a feature name.
func (f *OutputFeatures) UnmarshalText(text []byte) error {
	for k, v := range outputFeatureNames {
		if v == string(text) {
			*f = k
			return nil
		}
	}
	return fmt.Errorf("unknown output features %q", text)
}

// KernelFeatures selects the kernel variant and what its signature
// commits to.
type KernelFeatures uint8

const (
	// KernelPlain is a regular transaction kernel carrying a fee.
	KernelPlain KernelFeatures = 0

	// KernelCoinbase is the kernel of a block reward.
	KernelCoinbase KernelFeatures = 1

	// KernelHeightLocked is a kernel that is invalid before its lock
	// height.
	KernelHeightLocked KernelFeatures = 2
)

var kernelFeatureNames = map[KernelFeatures]string{
	KernelPlain:        "Plain",
	KernelCoinbase:     "Coinbase",
	KernelHeightLocked: "HeightLocked",
}

// String returns the feature name used on the wire.
func (f KernelFeatures) String() string {
	if s, ok := kernelFeatureNames[f]; ok {
		return s
	}
	return fmt.Sprintf("KernelFeatures(%d)", uint8(f))
}

// MarshalText encodes the feature name.
func (f KernelFeatures) MarshalText() ([]byte, error) {
	if _, ok := kernelFeatureNames[f]; !ok {
		return nil, fmt.Errorf("unknown kernel features %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText decodes a feature name.
func (f *KernelFeatures) UnmarshalText(text []byte) error {
	for k, v := range kernelFeatureNames {
		if v == string(text) {
			*f = k
			return nil
		}
	}
	return fmt.Errorf("unknown kernel features %q", text)
}
