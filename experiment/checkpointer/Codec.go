package checkpointer

import (
	"bytes"
	"compress/flate"
	"io"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/samuelfneumann/phasic/buffer/expreplay"
)

// DefaultCeiling is the default size ceiling of an encoded replay
// buffer, in bytes
const DefaultCeiling int64 = 3_700_000_000

// FrameMatch records, for a replay buffer of 2-frame stacked
// observations, which stored observations begin with a duplicate of
// the previous observation's newer frame.
//
// Each observation's last axis holds the older frame in its first half
// and the newer frame in its second half. Mask[i] is true if the older
// frame of observation i equals the newer frame of observation i-1 in
// the same lane. The first observation of a lane never matches.
type FrameMatch struct {
	Mask []bool
}

// Codec encodes replay buffers for checkpoints under a size ceiling,
// trying in order to store them raw, sliced, and compressed
type Codec struct {
	ceiling int64
	logger  zerolog.Logger
}

// NewCodec returns a new Codec with the given size ceiling in bytes
func NewCodec(ceiling int64, logger zerolog.Logger) *Codec {
	return &Codec{
		ceiling: ceiling,
		logger:  logger.With().Str("component", "checkpoint_codec").Logger(),
	}
}

// Ceiling returns the size ceiling of the Codec
func (c *Codec) Ceiling() int64 {
	return c.ceiling
}

// Encode encodes a copy of the buffer using the first strategy whose
// size is under the ceiling. If no strategy fits, the returned blob is
// tagged Failed and holds no data. Encoding never modifies the buffer.
func (c *Codec) Encode(buf *expreplay.Buffer) *Blob {
	blob := &Blob{
		Config:    buf.Config(),
		Occupancy: buf.Occupancy(),
	}

	switch {
	case buf.ByteSize() < c.ceiling:
		blob.Strategy = Raw
		blob.Obs = append([]uint8(nil), buf.Observations()...)

	case buf.FrameStack() == 2:
		match := MatchFrames(buf)
		sliced := slice(buf, match)
		blob.Match = match

		if int64(len(sliced)+len(match.Mask)) < c.ceiling {
			blob.Strategy = Sliced
			blob.Obs = sliced
			break
		}

		compressed, err := deflate(sliced)
		if err != nil {
			c.logger.Error().Err(err).Msg("could not compress replay buffer")
		} else if int64(len(compressed)+len(match.Mask)) < c.ceiling {
			blob.Strategy = Compressed
			blob.Obs = compressed
		}
	}

	if blob.Strategy == "" {
		c.logger.Error().
			Int64("bytes", buf.ByteSize()).
			Int64("ceiling", c.ceiling).
			Msg("replay buffer too large to checkpoint, omitting it")
		return &Blob{Strategy: Failed, Config: blob.Config}
	}

	blob.Dones = append([]bool(nil), buf.Dones()...)
	blob.Rewards = append([]float32(nil), buf.Rewards()...)

	c.logger.Info().
		Str("strategy", string(blob.Strategy)).
		Int64("bytes", blob.Size()).
		Msg("encoded replay buffer")
	return blob
}

// Decode loads the contents of a blob into buf, which must have the
// same geometry as the encoded buffer. Decoding a Failed blob returns
// ErrBufferOmitted. On any error buf is left unchanged.
func (c *Codec) Decode(blob *Blob, buf *expreplay.Buffer) error {
	const op = "decode"

	if blob.Strategy == Failed {
		return &CheckpointError{Op: op, Err: ErrBufferOmitted}
	}
	if !reflect.DeepEqual(blob.Config, buf.Config()) {
		return &CheckpointError{Op: op, Err: errGeometry}
	}

	var obs []uint8
	switch blob.Strategy {
	case Raw:
		obs = blob.Obs

	case Sliced, Compressed:
		if buf.FrameStack() != 2 ||
			len(blob.Match.Mask) != buf.Capacity() {
			return &CheckpointError{Op: op, Err: errCorrupt}
		}

		sliced := blob.Obs
		if blob.Strategy == Compressed {
			var err error
			if sliced, err = inflate(blob.Obs); err != nil {
				return &CheckpointError{Op: op, Err: errCorrupt}
			}
		}

		var ok bool
		if obs, ok = unslice(buf, sliced, blob.Match); !ok {
			return &CheckpointError{Op: op, Err: errCorrupt}
		}

	default:
		return &CheckpointError{Op: op, Err: errUnknownStrategy}
	}

	if err := buf.Load(obs, blob.Dones, blob.Rewards,
		blob.Occupancy); err != nil {
		return &CheckpointError{Op: op, Err: err}
	}
	return nil
}

// halves returns the number of rows along the leading observation
// axes and the length of half the last axis of a 2-frame stacked
// observation
func halves(buf *expreplay.Buffer) (rows, half int) {
	shape := buf.ObsShape()
	last := shape[len(shape)-1]
	return buf.ObsSize() / last, last / 2
}

// laneStart returns whether transition i is the first of its lane
func laneStart(buf *expreplay.Buffer, i int) bool {
	_, steps := buf.Lanes()
	return i%steps == 0
}

// MatchFrames computes the duplicate frame mask of a buffer of 2-frame
// stacked observations
func MatchFrames(buf *expreplay.Buffer) FrameMatch {
	rows, half := halves(buf)
	mask := make([]bool, buf.Capacity())

	for i := range mask {
		if laneStart(buf, i) {
			continue
		}
		prev, cur := buf.Observation(i-1), buf.Observation(i)

		match := true
		for r := 0; r < rows && match; r++ {
			row := r * 2 * half
			match = bytes.Equal(cur[row:row+half], prev[row+half:row+2*half])
		}
		mask[i] = match
	}
	return FrameMatch{Mask: mask}
}

// slice returns the sliced payload of a buffer: for each observation
// in order, its newer frame, followed by its older frame if the
// observation starts a lane or does not match the previous one
func slice(buf *expreplay.Buffer, match FrameMatch) []uint8 {
	rows, half := halves(buf)
	frame := rows * half

	stored := 0
	for i, m := range match.Mask {
		if !m || laneStart(buf, i) {
			stored++
		}
	}
	out := make([]uint8, 0, (buf.Capacity()+stored)*frame)

	for i, m := range match.Mask {
		obs := buf.Observation(i)
		for r := 0; r < rows; r++ {
			row := r * 2 * half
			out = append(out, obs[row+half:row+2*half]...)
		}
		if m && !laneStart(buf, i) {
			continue
		}
		for r := 0; r < rows; r++ {
			row := r * 2 * half
			out = append(out, obs[row:row+half]...)
		}
	}
	return out
}

// unslice reconstructs the observations of a buffer from a sliced
// payload, returning false if the payload does not fit the mask
func unslice(buf *expreplay.Buffer, sliced []uint8,
	match FrameMatch) ([]uint8, bool) {
	rows, half := halves(buf)
	frame := rows * half
	obsSize := buf.ObsSize()
	obs := make([]uint8, buf.Capacity()*obsSize)

	pos := 0
	next := func() ([]uint8, bool) {
		if pos+frame > len(sliced) {
			return nil, false
		}
		f := sliced[pos : pos+frame]
		pos += frame
		return f, true
	}

	for i, m := range match.Mask {
		cur := obs[i*obsSize : (i+1)*obsSize]

		newer, ok := next()
		if !ok {
			return nil, false
		}
		for r := 0; r < rows; r++ {
			copy(cur[r*2*half+half:], newer[r*half:(r+1)*half])
		}

		if m && !laneStart(buf, i) {
			prev := obs[(i-1)*obsSize : i*obsSize]
			for r := 0; r < rows; r++ {
				row := r * 2 * half
				copy(cur[row:row+half], prev[row+half:row+2*half])
			}
			continue
		}

		older, ok := next()
		if !ok {
			return nil, false
		}
		for r := 0; r < rows; r++ {
			copy(cur[r*2*half:r*2*half+half], older[r*half:(r+1)*half])
		}
	}

	return obs, pos == len(sliced)
}

func deflate(data []uint8) ([]uint8, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func inflate(data []uint8) ([]uint8, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
