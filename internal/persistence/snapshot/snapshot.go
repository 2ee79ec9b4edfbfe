package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version      int    `json:"version"`
	TakenAt      string `json:"taken_at"`
	TuningDigest string `json:"tuning_digest"`
	Boxers       int    `json:"boxers"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Boxers []BoxerV1 `json:"boxers"`
}

type BoxerV1 struct {
	Token        string `json:"token"`
	Health       uint8  `json:"health"`
	AttackPower  uint8  `json:"attack_power"`
	DefensePower uint8  `json:"defense_power"`
	LastMove     string `json:"last_move"`
	Revision     uint64 `json:"revision"`
	UpdatedAt    string `json:"updated_at"`
}

// WriteSnapshot writes a header line followed by a gob body, all zstd
// compressed. The file appears at path only once fully written.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if snap.Header.TakenAt == "" {
		snap.Header.TakenAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	snap.Header.Boxers = len(snap.Boxers)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	hb, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if len(snap.Boxers) != snap.Header.Boxers {
		return snap, fmt.Errorf("snapshot truncated: header says %d boxers, body has %d", snap.Header.Boxers, len(snap.Boxers))
	}
	return snap, nil
}
