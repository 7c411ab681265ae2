package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/d4l3k/go-bfloat16"
	"github.com/google/uuid"
	"github.com/x448/float16"

	"github.com/atomistic/descriptor/pkg/errors"
)

// File layout, all integers little-endian:
//
//	[4]byte magic "ADCP"
//	uint16  format version
//	uint32  manifest length
//	[]byte  manifest JSON
//	[]byte  tensor payloads, concatenated in manifest order
const (
	codecVersion  = 1
	maxManifestSz = 64 << 20
)

var magic = [4]byte{'A', 'D', 'C', 'P'}

type manifestEntry struct {
	Name  string `json:"name"`
	DType DType  `json:"dtype"`
	Shape []int  `json:"shape"`
}

type manifest struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Tensors   []manifestEntry `json:"tensors"`
}

// Save serializes the store to w.
func Save(w io.Writer, s *Store) error {
	m := manifest{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, name := range s.names {
		t := s.tensors[name]
		m.Tensors = append(m.Tensors, manifestEntry{Name: name, DType: t.DType, Shape: t.Shape})
	}
	body, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointCodec, "encode checkpoint manifest")
	}

	if _, err := w.Write(magic[:]); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointCodec, "write checkpoint header")
	}
	hdr := make([]byte, 6)
	binary.LittleEndian.PutUint16(hdr[0:2], codecVersion)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(body)))
	if _, err := w.Write(hdr); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointCodec, "write checkpoint header")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointCodec, "write checkpoint manifest")
	}

	for _, name := range s.names {
		t := s.tensors[name]
		payload, err := encodePayload(t)
		if err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return errors.Wrap(err, errors.CodeCheckpointCodec,
				fmt.Sprintf("write payload of %q", name))
		}
	}
	return nil
}

// Open deserializes a store from r.
func Open(r io.Reader) (*Store, error) {
	var hdr [10]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointCodec, "read checkpoint header")
	}
	if [4]byte{hdr[0], hdr[1], hdr[2], hdr[3]} != magic {
		return nil, errors.New(errors.CodeCheckpointCodec, "bad checkpoint magic")
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != codecVersion {
		return nil, errors.New(errors.CodeCheckpointCodec,
			fmt.Sprintf("unsupported checkpoint version %d", v))
	}
	mlen := binary.LittleEndian.Uint32(hdr[6:10])
	if mlen == 0 || mlen > maxManifestSz {
		return nil, errors.New(errors.CodeCheckpointCodec,
			fmt.Sprintf("implausible manifest length %d", mlen))
	}

	body := make([]byte, mlen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointCodec, "read checkpoint manifest")
	}
	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointCodec, "decode checkpoint manifest")
	}

	s := NewStore()
	for _, e := range m.Tensors {
		t := &Tensor{DType: e.DType, Shape: e.Shape}
		esz, err := e.DType.elemSize()
		if err != nil {
			return nil, err
		}
		payload := make([]byte, t.Len()*esz)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errors.Wrap(err, errors.CodeCheckpointCodec,
				fmt.Sprintf("read payload of %q", e.Name))
		}
		if t.Data, err = decodePayload(e.DType, payload); err != nil {
			return nil, err
		}
		if err := s.Put(e.Name, t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SaveFile writes the store to path, truncating any existing file.
func SaveFile(path string, s *Store) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeCheckpointCodec, "create checkpoint file")
	}
	defer f.Close()
	if err := Save(f, s); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.CodeCheckpointCodec, "close checkpoint file")
	}
	return nil
}

// OpenFile reads a store from path.
func OpenFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCheckpointCodec, "open checkpoint file")
	}
	defer f.Close()
	return Open(f)
}

func encodePayload(t *Tensor) ([]byte, error) {
	switch t.DType {
	case Float64:
		out := make([]byte, len(t.Data)*8)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
		return out, nil
	case Float32:
		out := make([]byte, len(t.Data)*4)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
		}
		return out, nil
	case Float16:
		out := make([]byte, len(t.Data)*2)
		for i, v := range t.Data {
			binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
		return out, nil
	case BFloat16:
		f32s := make([]float32, len(t.Data))
		for i, v := range t.Data {
			f32s[i] = float32(v)
		}
		return bfloat16.EncodeFloat32(f32s), nil
	default:
		return nil, errors.New(errors.CodeUnsupportedDType,
			fmt.Sprintf("unsupported tensor dtype %q", string(t.DType)))
	}
}

func decodePayload(d DType, payload []byte) ([]float64, error) {
	switch d {
	case Float64:
		out := make([]float64, len(payload)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
		}
		return out, nil
	case Float32:
		out := make([]float64, len(payload)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:])))
		}
		return out, nil
	case Float16:
		out := make([]float64, len(payload)/2)
		for i := range out {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(payload[2*i:])).Float32())
		}
		return out, nil
	case BFloat16:
		f32s := bfloat16.DecodeFloat32(payload)
		out := make([]float64, len(f32s))
		for i, v := range f32s {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, errors.New(errors.CodeUnsupportedDType,
			fmt.Sprintf("unsupported tensor dtype %q", string(d)))
	}
}
