// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/keychain"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/google/uuid"
)

// Naming
//
// The following variables are commonly used in this file and given
// reserved names:
//
//   ns: The namespace bucket for this package
//   b:  The primary bucket being operated on
//   k:  A single bucket key
//   v:  A single bucket value
//
// Functions use the naming scheme `Op[Raw]Type[Field]`, which performs the
// operation `Op` on the type `Type`. The following operations are used:
//
//   key:   return a db key for some data
//   value: return a db value for some data
//   read:  read a value into an out parameter

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

// LatestVersion is the most recent store version.
const LatestVersion = 1

// Bucket names
var (
	namespaceKey    = []byte("wtxmgr")
	bucketOutputs   = []byte("o")
	bucketTxLog     = []byte("t")
	bucketSlateIdx  = []byte("s")
	bucketContexts  = []byte("c")
	bucketStoredTxs = []byte("x")
)

// Root (namespace) bucket keys
var (
	rootVersion    = []byte("vers")
	rootCreateDate = []byte("date")
	rootChildIndex = []byte("child")
)

// Output records are keyed by their commitment. The value is serialized as
// such:
//
//   [0:17]  Key identifier (17 bytes)
//   [17:25] Value (8 bytes)
//   [25]    Status (1 byte)
//   [26:34] Height (8 bytes)
//   [34:42] Lock height (8 bytes)
//   [42]    Coinbase flag (1 byte)
//   [43:47] Creating log entry id (4 bytes)
//   [47:51] Locking log entry id (4 bytes)

const outputValueSize = 51

func valueOutput(o *OutputRecord) []byte {
	v := make([]byte, outputValueSize)
	copy(v, o.KeyID[:])
	byteOrder.PutUint64(v[17:25], o.Value)
	v[25] = byte(o.Status)
	byteOrder.PutUint64(v[26:34], o.Height)
	byteOrder.PutUint64(v[34:42], o.LockHeight)
	if o.IsCoinbase {
		v[42] = 1
	}
	byteOrder.PutUint32(v[43:47], o.TxLogID)
	byteOrder.PutUint32(v[47:51], o.LockID)
	return v
}

func readOutput(k, v []byte, o *OutputRecord) error {
	if len(k) != commit.CommitmentSize || len(v) != outputValueSize {
		return werr.Newf(werr.ErrStoreFailure, "%s: bad record size "+
			"(key %d, value %d)", bucketOutputs, len(k), len(v))
	}
	copy(o.Commit[:], k)
	copy(o.KeyID[:], v[:keychain.IdentifierSize])
	o.Value = byteOrder.Uint64(v[17:25])
	o.Status = OutputStatus(v[25])
	o.Height = byteOrder.Uint64(v[26:34])
	o.LockHeight = byteOrder.Uint64(v[34:42])
	o.IsCoinbase = v[42] == 1
	o.TxLogID = byteOrder.Uint32(v[43:47])
	o.LockID = byteOrder.Uint32(v[47:51])
	return nil
}

// Log entries are keyed by their id. The value is serialized as such:
//
//   [0:16]    Slate id (16 bytes)
//   [16]      Type (1 byte)
//   [17]      State (1 byte)
//   [18:26]   Participant id (8 bytes)
//   [26:34]   Creation time, unix nanoseconds (8 bytes)
//   [34]      Confirmation time present (1 byte)
//   [35:43]   Confirmation time, unix nanoseconds (8 bytes)
//   [43]      Confirmed (1 byte)
//   [44:52]   Amount credited (8 bytes)
//   [52:60]   Amount debited (8 bytes)
//   [60:64]   Number of inputs (4 bytes)
//   [64:68]   Number of outputs (4 bytes)
//   [68:76]   Fee (8 bytes)
//   [76:109]  Kernel excess (33 bytes)
//   [109]     Stored transaction present (1 byte)
//
// The slate index bucket maps each slate id to its entry id.

const txLogValueSize = 110

func keyTxLog(id uint32) []byte {
	k := make([]byte, 4)
	byteOrder.PutUint32(k, id)
	return k
}

func valueTxLog(e *TxLogEntry) []byte {
	v := make([]byte, txLogValueSize)
	copy(v, e.SlateID[:])
	v[16] = byte(e.Type)
	v[17] = byte(e.State)
	byteOrder.PutUint64(v[18:26], e.ParticipantID)
	byteOrder.PutUint64(v[26:34], uint64(e.CreationTS.UnixNano()))
	if e.ConfirmationTS != nil {
		v[34] = 1
		byteOrder.PutUint64(v[35:43],
			uint64(e.ConfirmationTS.UnixNano()))
	}
	if e.Confirmed {
		v[43] = 1
	}
	byteOrder.PutUint64(v[44:52], e.AmountCredited)
	byteOrder.PutUint64(v[52:60], e.AmountDebited)
	byteOrder.PutUint32(v[60:64], e.NumInputs)
	byteOrder.PutUint32(v[64:68], e.NumOutputs)
	byteOrder.PutUint64(v[68:76], e.Fee)
	copy(v[76:109], e.KernelExcess[:])
	if e.StoredTx {
		v[109] = 1
	}
	return v
}

func readTxLog(k, v []byte, e *TxLogEntry) error {
	if len(k) != 4 || len(v) != txLogValueSize {
		return werr.Newf(werr.ErrStoreFailure, "%s: bad record size "+
			"(key %d, value %d)", bucketTxLog, len(k), len(v))
	}
	e.ID = byteOrder.Uint32(k)
	copy(e.SlateID[:], v[:16])
	e.Type = TxLogType(v[16])
	e.State = slate.State(v[17])
	e.ParticipantID = byteOrder.Uint64(v[18:26])
	e.CreationTS = fromUnixNano(byteOrder.Uint64(v[26:34]))
	e.ConfirmationTS = nil
	if v[34] == 1 {
		ts := fromUnixNano(byteOrder.Uint64(v[35:43]))
		e.ConfirmationTS = &ts
	}
	e.Confirmed = v[43] == 1
	e.AmountCredited = byteOrder.Uint64(v[44:52])
	e.AmountDebited = byteOrder.Uint64(v[52:60])
	e.NumInputs = byteOrder.Uint32(v[60:64])
	e.NumOutputs = byteOrder.Uint32(v[64:68])
	e.Fee = byteOrder.Uint64(v[68:76])
	copy(e.KernelExcess[:], v[76:109])
	e.StoredTx = v[109] == 1
	return nil
}

func fromUnixNano(n uint64) time.Time {
	return time.Unix(0, int64(n)).UTC()
}

// Contexts are keyed by slate id followed by the participant id:
//
//   [0:16]  Slate id (16 bytes)
//   [16:24] Participant id (8 bytes)
//
// The value is the context's TLV encoding.

func keyContext(slateID uuid.UUID, participantID uint64) []byte {
	k := make([]byte, 24)
	copy(k, slateID[:])
	byteOrder.PutUint64(k[16:24], participantID)
	return k
}

func readUint32(v []byte, what []byte) (uint32, error) {
	if v == nil {
		return 0, nil
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("%s: short read (expected 4 bytes, "+
			"read %d)", what, len(v))
	}
	return byteOrder.Uint32(v), nil
}
