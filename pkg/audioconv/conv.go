package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

type Options struct {
	MaxSamples int
}

// Decode reads a wav, mp3 or ogg (vorbis or opus) recording into a mono
// Buffer at the file's native rate. Unknown extensions are sniffed.
func Decode(path string, opt Options) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, err
	}
	defer f.Close()

	var b Buffer
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		b, err = decodeWAV(f)
	case ".mp3":
		b, err = decodeMP3(f)
	case ".ogg", ".oga", ".opus":
		b, err = decodeOgg(f)
	default:
		br := bufio.NewReader(f)
		magic, _ := br.Peek(4)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Buffer{}, err
		}
		switch string(magic) {
		case "RIFF":
			b, err = decodeWAV(f)
		case "OggS":
			b, err = decodeOgg(f)
		default:
			return Buffer{}, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg-vorbis/ogg-opus)", ext)
		}
	}
	if err != nil {
		return Buffer{}, fmt.Errorf("decode %s: %w", path, err)
	}

	if opt.MaxSamples > 0 && len(b.Samples) > opt.MaxSamples {
		b.Samples = b.Samples[:opt.MaxSamples]
	}
	return b, nil
}

// DecodeAt decodes path and resamples it to rate.
func DecodeAt(path string, rate int, opt Options) (Buffer, error) {
	b, err := Decode(path, Options{})
	if err != nil {
		return Buffer{}, err
	}
	if b.SampleRate != rate {
		if b, err = Resample(b, rate); err != nil {
			return Buffer{}, err
		}
	}
	if opt.MaxSamples > 0 && len(b.Samples) > opt.MaxSamples {
		b.Samples = b.Samples[:opt.MaxSamples]
	}
	return b, nil
}

func decodeOgg(f io.ReadSeeker) (Buffer, error) {
	b, verr := decodeOggVorbis(f)
	if verr == nil {
		return b, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Buffer{}, err
	}
	b, oerr := decodeOggOpus(f)
	if oerr != nil {
		return Buffer{}, fmt.Errorf("not vorbis (%v) nor opus: %w", verr, oerr)
	}
	return b, nil
}

func decodeWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return Buffer{}, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch := int(dec.NumChans)
	sr := int(dec.SampleRate)
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if sr <= 0 {
		return Buffer{}, errors.New("wav without sample rate")
	}

	return Buffer{Samples: downmixInterleaved(x, ch), SampleRate: sr}, nil
}

func decodeMP3(r io.Reader) (Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Buffer{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return Buffer{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return Buffer{}, err
	}

	// go-mp3 always yields interleaved stereo
	x := downmixInterleaved(int16SliceToFloat32(ints), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return Buffer{Samples: x, SampleRate: sr}, nil
}

func decodeOggVorbis(r io.Reader) (Buffer, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Buffer{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return Buffer{}, errors.New("invalid ogg/vorbis stream")
	}
	return Buffer{Samples: downmixInterleaved(pcm, format.Channels), SampleRate: format.SampleRate}, nil
}

const opusRate = 48000

func decodeOggOpus(rs io.ReadSeeker) (Buffer, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return Buffer{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		pcm []float32
		buf = make([]int16, opusRate*ch/2)
	)
	for {
		n, err := dec.Read(buf) // samples per channel
		if n > 0 {
			pcm = append(pcm, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Buffer{}, err
		}
	}

	return Buffer{Samples: downmixInterleaved(pcm, ch), SampleRate: opusRate}, nil
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
