package lighthouse

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// The key service stores 5 shards and reassembles the key from any 3.
const (
	shardCount     = 5
	shardThreshold = 3
)

type keyShard struct {
	Key   string `json:"key"`
	Index string `json:"index"`
}

// newMasterKey draws a BLS12-381 scalar and returns it with its 32 byte
// encoding, which doubles as the symmetric file key.
func newMasterKey() (fr.Element, []byte, error) {
	var secret fr.Element
	for secret.IsZero() {
		if _, err := secret.SetRandom(); err != nil {
			return fr.Element{}, nil, err
		}
	}
	raw := secret.Bytes()
	return secret, raw[:], nil
}

// splitKey shares secret as the constant term of a random polynomial of
// degree threshold-1 evaluated at count distinct random ids.
func splitKey(secret fr.Element, count, threshold int) ([]keyShard, error) {
	if threshold < 1 || count < threshold {
		return nil, fmt.Errorf("invalid shard scheme %d of %d", threshold, count)
	}
	coeffs := make([]fr.Element, threshold)
	coeffs[0].Set(&secret)
	for i := 1; i < threshold; i++ {
		if _, err := coeffs[i].SetRandom(); err != nil {
			return nil, err
		}
	}

	ids := make([]fr.Element, 0, count)
	shards := make([]keyShard, 0, count)
	for len(ids) < count {
		var id fr.Element
		if _, err := id.SetRandom(); err != nil {
			return nil, err
		}
		if id.IsZero() || containsElement(ids, &id) {
			continue
		}
		ids = append(ids, id)

		// Horner evaluation
		var y fr.Element
		for i := threshold - 1; i >= 0; i-- {
			y.Mul(&y, &id)
			y.Add(&y, &coeffs[i])
		}
		shards = append(shards, keyShard{Key: encodeElement(&y), Index: encodeElement(&id)})
	}
	return shards, nil
}

// recoverKey interpolates the sharing polynomial at zero.
func recoverKey(shards []keyShard) (fr.Element, error) {
	if len(shards) == 0 {
		return fr.Element{}, errors.New("no key shards")
	}
	xs := make([]fr.Element, len(shards))
	ys := make([]fr.Element, len(shards))
	for i, s := range shards {
		if err := decodeElement(s.Index, &xs[i]); err != nil {
			return fr.Element{}, fmt.Errorf("shard %d index: %w", i, err)
		}
		if xs[i].IsZero() || containsElement(xs[:i], &xs[i]) {
			return fr.Element{}, fmt.Errorf("shard %d has a zero or repeated index", i)
		}
		if err := decodeElement(s.Key, &ys[i]); err != nil {
			return fr.Element{}, fmt.Errorf("shard %d key: %w", i, err)
		}
	}

	var secret fr.Element
	for i := range xs {
		// basis polynomial at zero: prod x_j / (x_j - x_i)
		var num, den fr.Element
		num.SetOne()
		den.SetOne()
		for j := range xs {
			if i == j {
				continue
			}
			var diff fr.Element
			diff.Sub(&xs[j], &xs[i])
			num.Mul(&num, &xs[j])
			den.Mul(&den, &diff)
		}
		var term fr.Element
		term.Inverse(&den)
		term.Mul(&term, &num)
		term.Mul(&term, &ys[i])
		secret.Add(&secret, &term)
	}
	return secret, nil
}

func containsElement(set []fr.Element, e *fr.Element) bool {
	for i := range set {
		if set[i].Equal(e) {
			return true
		}
	}
	return false
}

func encodeElement(e *fr.Element) string {
	raw := e.Bytes()
	return hex.EncodeToString(raw[:])
}

func decodeElement(s string, e *fr.Element) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != fr.Bytes {
		return fmt.Errorf("want %d bytes, got %d", fr.Bytes, len(raw))
	}
	return e.SetBytesCanonical(raw)
}
