/*package snapshot writes and reads evaluation snapshots, binary files that
pair the target positions of a run with the potentials computed at them.
The bulk data is zstd-compressed; the small fixed header is not, so a file
can be identified and sanity-checked without decompressing anything.*/
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"

	"github.com/DataDog/zstd"
)

const (
	// MagicNumber is an arbitrary number at the start of all snapshot files
	// which should help identify when the code is run on something else by
	// accident.
	MagicNumber = 0xfa57b0d5
	// ReverseMagicNumber is the magic number if read on a machine with
	// flipped endianness.
	ReverseMagicNumber = 0xd5b057fa
	Version = 1

	compressionLevel = 1
)

// Snapshot is the in-memory form of one snapshot file.
type Snapshot struct {
	Dim int64
	Targets [][3]float64
	Potentials []complex128
}

// Write writes a snapshot to fname. Targets and potentials must be the same
// length and dim must describe the geometry the positions came from.
func Write(fname string, dim int, targets [][3]float64,
	potentials []complex128) error {

	if len(targets) != len(potentials) {
		return fmt.Errorf("Snapshot has %d targets, but %d potentials.",
			len(targets), len(potentials))
	}
	if dim != 2 && dim != 3 {
		return fmt.Errorf("Snapshot dimension must be 2 or 3, not %d.", dim)
	}

	data := &bytes.Buffer{ }
	for i := range targets {
		binary.Write(data, binary.LittleEndian, &targets[i])
	}
	binary.Write(data, binary.LittleEndian, potentials)

	blob, err := zstd.CompressLevel(nil, data.Bytes(), compressionLevel)
	if err != nil { return err }

	out := &bytes.Buffer{ }
	header := []int64{
		MagicNumber, Version, int64(dim), int64(len(targets)),
		int64(data.Len()), int64(len(blob)),
	}
	binary.Write(out, binary.LittleEndian, header)
	out.Write(blob)

	return ioutil.WriteFile(fname, out.Bytes(), 0644)
}

// Read reads the snapshot stored at fname.
func Read(fname string) (*Snapshot, error) {
	b, err := ioutil.ReadFile(fname)
	if err != nil { return nil, err }

	in := bytes.NewReader(b)
	header := make([]int64, 6)
	err = binary.Read(in, binary.LittleEndian, header)
	if err != nil {
		return nil, fmt.Errorf("%s is too short to be a snapshot file.", fname)
	}

	magic, version := header[0], header[1]
	dim, n, rawLen, blobLen := header[2], header[3], header[4], header[5]

	if uint32(magic) == ReverseMagicNumber {
		return nil, fmt.Errorf("%s was written on a machine with different " +
			"endianness.", fname)
	} else if uint32(magic) != MagicNumber {
		return nil, fmt.Errorf("%s is not a snapshot file.", fname)
	}
	if version != Version {
		return nil, fmt.Errorf("%s has snapshot version %d, but this " +
			"version of the code reads version %d.", fname, version, Version)
	}

	expRawLen := n*3*8 + n*16
	if rawLen != expRawLen {
		return nil, fmt.Errorf("%s claims %d targets, which needs %d data " +
			"bytes, but stores %d.", fname, n, expRawLen, rawLen)
	}
	if int64(in.Len()) != blobLen {
		return nil, fmt.Errorf("%s should contain a %d-byte compressed " +
			"block, but contains %d bytes.", fname, blobLen, in.Len())
	}

	data, err := zstd.Decompress(make([]byte, 0, rawLen), b[len(b)-in.Len():])
	if err != nil { return nil, err }
	if int64(len(data)) != rawLen {
		return nil, fmt.Errorf("%s decompressed to %d bytes, not %d.",
			fname, len(data), rawLen)
	}

	snap := &Snapshot{
		Dim: dim,
		Targets: make([][3]float64, n),
		Potentials: make([]complex128, n),
	}

	dataRd := bytes.NewReader(data)
	for i := range snap.Targets {
		binary.Read(dataRd, binary.LittleEndian, &snap.Targets[i])
	}
	binary.Read(dataRd, binary.LittleEndian, snap.Potentials)

	return snap, nil
}
