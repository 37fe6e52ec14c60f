// Package decode turns sound files into pcm buffers. WAV keeps its native
// rate and channel layout; mp3 and ogg are resampled to the engine rate as
// stereo.
package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/pkg/errors"

	"github.com/cbegin/samplerbox/internal/pcm"
)

// Format is a container format the decoder understands.
type Format int

const (
	Unknown Format = iota
	WAV
	MP3
	Ogg
)

func (f Format) String() string {
	switch f {
	case WAV:
		return "wav"
	case MP3:
		return "mp3"
	case Ogg:
		return "ogg"
	default:
		return "unknown"
	}
}

// ErrUnsupported is returned for data that is neither wav, mp3 nor ogg.
var ErrUnsupported = errors.New("unsupported audio format")

// Sniff identifies data by its magic bytes, then by the extension of name.
func Sniff(name string, data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return WAV
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return Ogg
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return MP3
	case len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return MP3
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".wav":
		return WAV
	case ".mp3":
		return MP3
	case ".ogg":
		return Ogg
	}
	return Unknown
}

type Option func(*Decoder)

// WithBaseURL resolves relative references such as "/presets/drums/kick.wav"
// against a preset server.
func WithBaseURL(base string) Option {
	return func(d *Decoder) { d.baseURL = base }
}

func WithHTTPClient(c *http.Client) Option {
	return func(d *Decoder) { d.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// Decoder fetches and decodes sounds. It is safe for concurrent use.
type Decoder struct {
	sampleRate int
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

func New(sampleRate int, opts ...Option) *Decoder {
	d := &Decoder{
		sampleRate: sampleRate,
		client:     http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode fetches ref and decodes it. ref may be an http(s) URL, a file://
// URL, a path relative to the base URL, or a local file path.
func (d *Decoder) Decode(ctx context.Context, ref string) (*pcm.Buffer, error) {
	data, err := d.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	buf, err := DecodeBytes(d.sampleRate, ref, data)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("decoded sound",
		"ref", ref,
		"bytes", len(data),
		"sampleRate", buf.SampleRate,
		"channels", buf.NumChannels(),
		"frames", buf.Frames(),
	)
	return buf, nil
}

func (d *Decoder) fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", ref)
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return d.get(ctx, u.String())
	case u.Scheme == "file":
		return readFile(u.Path)
	case u.Scheme == "" && d.baseURL != "":
		base, err := url.Parse(d.baseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "parse base url %q", d.baseURL)
		}
		return d.get(ctx, base.ResolveReference(u).String())
	default:
		return readFile(ref)
	}
}

func (d *Decoder) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s", target)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", target)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("get %s: %s", target, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", target)
	}
	return data, nil
}

func readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read sound file")
	}
	return data, nil
}

// DecodeBytes decodes data whose name is used only as a format hint.
func DecodeBytes(sampleRate int, name string, data []byte) (*pcm.Buffer, error) {
	var (
		buf *pcm.Buffer
		err error
	)
	switch f := Sniff(name, data); f {
	case WAV:
		buf, err = decodeWAV(data)
	case MP3:
		var s *mp3.Stream
		if s, err = mp3.DecodeWithSampleRate(sampleRate, bytes.NewReader(data)); err == nil {
			buf, err = readStereo16(sampleRate, s)
		}
	case Ogg:
		var s *vorbis.Stream
		if s, err = vorbis.DecodeWithSampleRate(sampleRate, bytes.NewReader(data)); err == nil {
			buf, err = readStereo16(sampleRate, s)
		}
	default:
		return nil, errors.Wrap(ErrUnsupported, name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	if buf.Frames() == 0 {
		return nil, errors.Errorf("decode %s: no audio frames", name)
	}
	return buf, nil
}

func decodeWAV(data []byte) (*pcm.Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if ib.Format == nil || ib.Format.NumChannels <= 0 {
		return nil, errors.New("wav file has no channels")
	}
	bitDepth := ib.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth == 0 {
		return nil, errors.New("unknown wav bit depth")
	}
	out := make([]float32, len(ib.Data))
	if bitDepth == 8 {
		// 8-bit wav is unsigned
		for i, v := range ib.Data {
			out[i] = float32(v-128) / 128
		}
	} else {
		factor := math.Pow(2, float64(bitDepth-1))
		for i, v := range ib.Data {
			out[i] = float32(float64(v) / factor)
		}
	}
	return pcm.FromInterleaved(ib.Format.SampleRate, ib.Format.NumChannels, out), nil
}

// readStereo16 drains a 16-bit little endian stereo stream.
func readStereo16(sampleRate int, r io.Reader) (*pcm.Buffer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}
	return pcm.FromInterleaved(sampleRate, 2, out), nil
}
