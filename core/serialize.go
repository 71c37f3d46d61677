// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package core

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/forestblock/forest-wallet/commit"
)

const (
	// maxBodyItems bounds the number of inputs, outputs or kernels read
	// from a serialized transaction.
	maxBodyItems = 1 << 16

	// maxProofSize bounds a serialized range proof.
	maxProofSize = commit.RangeProofSize
)

var byteOrder = binary.BigEndian

// Serialize writes the transaction in its binary form:
//
//	offset (32) || n_in (u64) || inputs || n_out (u64) || outputs ||
//	n_kern (u64) || kernels
//
// with each input as features (1) || commit (33), each output as
// features (1) || commit (33) || proof_len (u64) || proof, and each kernel
// as features (1) || fee (u64) || lock_height (u64) || excess (33) ||
// signature (64).
func (t *Transaction) Serialize(w io.Writer) error {
	if _, err := w.Write(t.Offset[:]); err != nil {
		return err
	}

	if err := writeUint64(w, uint64(len(t.Body.Inputs))); err != nil {
		return err
	}
	for i := range t.Body.Inputs {
		in := &t.Body.Inputs[i]
		if _, err := w.Write([]byte{byte(in.Features)}); err != nil {
			return err
		}
		if _, err := w.Write(in.Commit[:]); err != nil {
			return err
		}
	}

	if err := writeUint64(w, uint64(len(t.Body.Outputs))); err != nil {
		return err
	}
	for i := range t.Body.Outputs {
		out := &t.Body.Outputs[i]
		if _, err := w.Write([]byte{byte(out.Features)}); err != nil {
			return err
		}
		if _, err := w.Write(out.Commit[:]); err != nil {
			return err
		}
		if err := writeUint64(w, uint64(len(out.Proof))); err != nil {
			return err
		}
		if _, err := w.Write(out.Proof); err != nil {
			return err
		}
	}

	if err := writeUint64(w, uint64(len(t.Body.Kernels))); err != nil {
		return err
	}
	for i := range t.Body.Kernels {
		if err := writeKernel(w, &t.Body.Kernels[i]); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a transaction written by Serialize.
func (t *Transaction) Deserialize(r io.Reader) error {
	if _, err := io.ReadFull(r, t.Offset[:]); err != nil {
		return err
	}

	n, err := readCount(r, "inputs")
	if err != nil {
		return err
	}
	t.Body.Inputs = make([]Input, n)
	for i := range t.Body.Inputs {
		in := &t.Body.Inputs[i]
		var f [1]byte
		if _, err := io.ReadFull(r, f[:]); err != nil {
			return err
		}
		in.Features = OutputFeatures(f[0])
		if _, err := io.ReadFull(r, in.Commit[:]); err != nil {
			return err
		}
	}

	n, err = readCount(r, "outputs")
	if err != nil {
		return err
	}
	t.Body.Outputs = make([]Output, n)
	for i := range t.Body.Outputs {
		out := &t.Body.Outputs[i]
		var f [1]byte
		if _, err := io.ReadFull(r, f[:]); err != nil {
			return err
		}
		out.Features = OutputFeatures(f[0])
		if _, err := io.ReadFull(r, out.Commit[:]); err != nil {
			return err
		}
		proofLen, err := readUint64(r)
		if err != nil {
			return err
		}
		if proofLen > maxProofSize {
			return fmt.Errorf("range proof of %d bytes exceeds "+
				"maximum %d", proofLen, maxProofSize)
		}
		out.Proof = make(commit.RangeProof, proofLen)
		if _, err := io.ReadFull(r, out.Proof); err != nil {
			return err
		}
	}

	n, err = readCount(r, "kernels")
	if err != nil {
		return err
	}
	t.Body.Kernels = make([]TxKernel, n)
	for i := range t.Body.Kernels {
		if err := readKernel(r, &t.Body.Kernels[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeKernel(w io.Writer, k *TxKernel) error {
	if _, err := w.Write([]byte{byte(k.Features)}); err != nil {
		return err
	}
	if err := writeUint64(w, k.Fee); err != nil {
		return err
	}
	if err := writeUint64(w, k.LockHeight); err != nil {
		return err
	}
	if _, err := w.Write(k.Excess[:]); err != nil {
		return err
	}
	_, err := w.Write(k.ExcessSig[:])
	return err
}

func readKernel(r io.Reader, k *TxKernel) error {
	var f [1]byte
	if _, err := io.ReadFull(r, f[:]); err != nil {
		return err
	}
	k.Features = KernelFeatures(f[0])

	var err error
	if k.Fee, err = readUint64(r); err != nil {
		return err
	}
	if k.LockHeight, err = readUint64(r); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, k.Excess[:]); err != nil {
		return err
	}
	_, err = io.ReadFull(r, k.ExcessSig[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b[:]), nil
}

func readCount(r io.Reader, what string) (int, error) {
	n, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	if n > maxBodyItems {
		return 0, fmt.Errorf("%d %s exceeds maximum %d", n, what,
			maxBodyItems)
	}
	return int(n), nil
}
