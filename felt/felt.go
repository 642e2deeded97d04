// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package felt

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Felt is a 252-bit Starknet field element, stored as a 32-byte big-endian
// value. The value type is comparable and can thus be used as a map key.
type Felt [32]byte

// New creates a new Felt instance from up to 4 uint64 arguments. The
// arguments are given in the order from most significant to least
// significant by padding leading zeros as needed. No argument results in a
// felt of value zero.
func New(args ...uint64) (result Felt) {
	if len(args) > 4 {
		panic("Too many arguments")
	}
	offset := 4 - len(args)
	for i := 0; i < len(args) && i < 4; i++ {
		start := (offset * 8) + i*8
		end := start + 8
		binary.BigEndian.PutUint64(result[start:end], args[i])
	}
	return
}

// FromUint256 converts a *uint256.Int to a Felt.
// If the input is nil, it returns 0.
func FromUint256(value *uint256.Int) (result Felt) {
	if value == nil {
		return result
	}
	return value.Bytes32()
}

// FromString encodes a short ASCII string of at most 31 bytes as a felt,
// the encoding used by Cairo for string literals in panic payloads.
func FromString(s string) (result Felt, err error) {
	if len(s) > 31 {
		return result, fmt.Errorf("short string too long: %d bytes", len(s))
	}
	copy(result[32-len(s):], s)
	return result, nil
}

func (f Felt) ToUint256() *uint256.Int {
	return new(uint256.Int).SetBytes(f[:])
}

func (f Felt) Uint64() (uint64, bool) {
	value := f.ToUint256()
	if !value.IsUint64() {
		return 0, false
	}
	return value.Uint64(), true
}

func (f Felt) IsZero() bool {
	return f == Felt{}
}

func (f Felt) Cmp(o Felt) int {
	return bytes.Compare(f[:], o[:])
}

func (f Felt) Add(o Felt) Felt {
	return FromUint256(new(uint256.Int).Add(f.ToUint256(), o.ToUint256()))
}

// ToShortString decodes the felt as a short ASCII string. Leading zero bytes
// are skipped; if any remaining byte is not printable ASCII the felt is
// rendered in its numeric form instead.
func (f Felt) ToShortString() string {
	start := 0
	for start < 32 && f[start] == 0 {
		start++
	}
	data := f[start:]
	for _, b := range data {
		if b < 0x20 || b > 0x7e {
			return f.String()
		}
	}
	return string(data)
}

func (f Felt) String() string {
	return fmt.Sprintf("0x%x", f.ToUint256().Bytes())
}

func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Felt) UnmarshalText(data []byte) error {
	s := string(data)
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("invalid format, does not start with 0x: %v", s)
	}
	s = s[2:]
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) > 32 {
		return fmt.Errorf("invalid format, wanted at most 32 bytes, got %d", len(raw))
	}
	*f = Felt{}
	copy(f[32-len(raw):], raw)
	return nil
}
