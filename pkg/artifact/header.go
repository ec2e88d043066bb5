package artifact

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Header is the decoded view of an artifact header, used for inspection.
type Header struct {
	Generation   Generation
	Size         int
	SourceLength uint32
	Fingerprint  []FingerprintField
}

// FingerprintField is one fingerprint range and the bytes found there.
type FingerprintField struct {
	Range Range
	Value uint32
	Hex   string
}

// Inspect decodes the header of blob according to layout.
func Inspect(blob []byte, layout Layout) (*Header, error) {
	n, err := SourceLength(blob, layout)
	if err != nil {
		return nil, err
	}

	h := &Header{
		Generation:   layout.Generation,
		Size:         len(blob),
		SourceLength: n,
	}

	for _, r := range layout.Fingerprint {
		if r.Len() != 4 {
			return nil, fmt.Errorf("fingerprint range %s is not 4 bytes", r)
		}
		field := blob[r.Start:r.End]
		h.Fingerprint = append(h.Fingerprint, FingerprintField{
			Range: r,
			Value: binary.LittleEndian.Uint32(field),
			Hex:   hex.EncodeToString(field),
		})
	}

	return h, nil
}
