// Package snapshot stores block volumes on disk: a JSON header line followed by
// a gob body, the whole stream zstd-compressed.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/udisondev/regions/internal/blockstore"
	"github.com/udisondev/regions/internal/geom"
)

const formatVersion = 1

var (
	ErrCorrupt = errors.New("corrupt volume snapshot")
	ErrVersion = errors.New("unsupported volume snapshot version")
)

type Header struct {
	Version int       `json:"version"`
	ID      string    `json:"id"`
	World   string    `json:"world"`
	Min     [3]int32  `json:"min"`
	Max     [3]int32  `json:"max"`
	TakenAt time.Time `json:"taken_at"`
	Reason  string    `json:"reason,omitempty"`
}

// Volume is a cuboid of block ids. Blocks are ordered x fastest, then z, then y,
// matching geom.Area.Blocks.
type Volume struct {
	Header Header
	Blocks []uint16
}

// Area returns the cuboid this volume covers.
func (v Volume) Area() (geom.Area, error) {
	w := geom.WorldID(v.Header.World)
	return geom.NewArea(
		geom.NewBlockPos(w, v.Header.Min[0], v.Header.Min[1], v.Header.Min[2]),
		geom.NewBlockPos(w, v.Header.Max[0], v.Header.Max[1], v.Header.Max[2]),
	)
}

// Capture copies every block of a out of view.
func Capture(view blockstore.View, a geom.Area, reason string) (Volume, error) {
	if !view.Loaded(a) {
		return Volume{}, fmt.Errorf("capture %s: %w", a, blockstore.ErrNotLoaded)
	}

	mn, mx := a.Min(), a.Max()
	v := Volume{
		Header: Header{
			Version: formatVersion,
			ID:      uuid.NewString(),
			World:   string(a.World()),
			Min:     [3]int32{mn.X, mn.Y, mn.Z},
			Max:     [3]int32{mx.X, mx.Y, mx.Z},
			TakenAt: time.Now().UTC(),
			Reason:  reason,
		},
		Blocks: make([]uint16, 0, a.Volume()),
	}
	for p := range a.Blocks() {
		id, _ := view.Block(p)
		v.Blocks = append(v.Blocks, id)
	}
	return v, nil
}

// Apply stages the volume's blocks into tx at their original positions.
func Apply(tx *blockstore.Tx, v Volume) error {
	a, err := v.Area()
	if err != nil {
		return fmt.Errorf("apply volume %s: %w", v.Header.ID, err)
	}
	if int64(len(v.Blocks)) != a.Volume() {
		return fmt.Errorf("apply volume %s: %d blocks for %s: %w", v.Header.ID, len(v.Blocks), a, ErrCorrupt)
	}
	i := 0
	for p := range a.Blocks() {
		if err := tx.Set(p, v.Blocks[i]); err != nil {
			return err
		}
		i++
	}
	return nil
}

// Path returns the file name a volume is written to inside dir.
func Path(dir string, v Volume) string {
	return filepath.Join(dir, v.Header.ID+".vol.zst")
}

// Write stores v at path, creating parent directories.
func Write(path string, v Volume) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(v.Header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(v.Blocks); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the header line of a stored volume.
func ReadHeader(path string) (Header, error) {
	var h Header
	err := read(path, func(br *bufio.Reader) error {
		var err error
		h, err = decodeHeader(br)
		return err
	})
	return h, err
}

// Read loads a stored volume.
func Read(path string) (Volume, error) {
	var v Volume
	err := read(path, func(br *bufio.Reader) error {
		h, err := decodeHeader(br)
		if err != nil {
			return err
		}
		v.Header = h
		if err := gob.NewDecoder(br).Decode(&v.Blocks); err != nil {
			return fmt.Errorf("gob decode: %w", err)
		}
		return nil
	})
	return v, err
}

func read(path string, fn func(br *bufio.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	return fn(bufio.NewReaderSize(dec, 256*1024))
}

func decodeHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", ErrCorrupt)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", ErrCorrupt)
	}
	if h.Version != formatVersion {
		return h, fmt.Errorf("version %d: %w", h.Version, ErrVersion)
	}
	return h, nil
}
