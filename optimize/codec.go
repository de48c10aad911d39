package optimize

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vinayprograms/rectopt/errors"
)

const (
	countSize     = 8
	regionSize    = 4 * 8
	candidateSize = 16
	outcomeSize   = 24
)

// EncodeCount encodes a pool size as 8 little-endian bytes.
func EncodeCount(n int) []byte {
	buf := make([]byte, countSize)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

// DecodeCount decodes a pool size.
func DecodeCount(data []byte) (int, error) {
	if len(data) != countSize {
		return 0, errors.Corruption(fmt.Sprintf("pool size payload is %d bytes, want %d", len(data), countSize))
	}
	n := binary.LittleEndian.Uint64(data)
	if n > math.MaxInt32 {
		return 0, errors.Corruption(fmt.Sprintf("pool size %d out of range", n))
	}
	return int(n), nil
}

// EncodeRegions flattens regions into four little-endian float64 each.
// Score caches are not encoded.
func EncodeRegions(regions []Region) []byte {
	buf := make([]byte, 0, len(regions)*regionSize)
	for _, r := range regions {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(r.LowX))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(r.HighX))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(r.LowY))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(r.HighY))
	}
	return buf
}

// DecodeRegions reverses EncodeRegions. Decoded regions have zero scores.
func DecodeRegions(data []byte) ([]Region, error) {
	if len(data)%regionSize != 0 {
		return nil, errors.Corruption(fmt.Sprintf("pool payload of %d bytes is not a multiple of %d", len(data), regionSize))
	}

	regions := make([]Region, len(data)/regionSize)
	for i := range regions {
		rec := data[i*regionSize:]
		regions[i] = Region{
			LowX:  math.Float64frombits(binary.LittleEndian.Uint64(rec[0:])),
			HighX: math.Float64frombits(binary.LittleEndian.Uint64(rec[8:])),
			LowY:  math.Float64frombits(binary.LittleEndian.Uint64(rec[16:])),
			HighY: math.Float64frombits(binary.LittleEndian.Uint64(rec[24:])),
		}
	}
	return regions, nil
}

// EncodeCandidate encodes score bits followed by the index as int64.
func EncodeCandidate(c Candidate) []byte {
	buf := make([]byte, candidateSize)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(c.Score))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(c.Index)))
	return buf
}

// DecodeCandidate reverses EncodeCandidate.
func DecodeCandidate(data []byte) (Candidate, error) {
	if len(data) != candidateSize {
		return NoCandidate(), errors.Corruption(fmt.Sprintf("candidate payload is %d bytes, want %d", len(data), candidateSize))
	}
	idx := int64(binary.LittleEndian.Uint64(data[8:]))
	if idx < -1 || idx > math.MaxInt32 {
		return NoCandidate(), errors.Corruption(fmt.Sprintf("candidate index %d out of range", idx))
	}
	return Candidate{
		Score: math.Float64frombits(binary.LittleEndian.Uint64(data[0:])),
		Index: int(idx),
	}, nil
}

// Outcome is what every rank returns from a run.
type Outcome struct {
	Minimum  float64
	PoolSize int
	Rounds   int
}

func encodeOutcome(o Outcome) []byte {
	buf := make([]byte, outcomeSize)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(o.Minimum))
	binary.LittleEndian.PutUint64(buf[8:], uint64(o.PoolSize))
	binary.LittleEndian.PutUint64(buf[16:], uint64(o.Rounds))
	return buf
}

func decodeOutcome(data []byte) (Outcome, error) {
	if len(data) != outcomeSize {
		return Outcome{}, errors.Corruption(fmt.Sprintf("outcome payload is %d bytes, want %d", len(data), outcomeSize))
	}
	return Outcome{
		Minimum:  math.Float64frombits(binary.LittleEndian.Uint64(data[0:])),
		PoolSize: int(binary.LittleEndian.Uint64(data[8:])),
		Rounds:   int(binary.LittleEndian.Uint64(data[16:])),
	}, nil
}
