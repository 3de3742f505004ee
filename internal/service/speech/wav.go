package speech

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavChannels  = 1
	wavPCMFormat = 1

	// ContentTypeWAV 合成结果的容器类型
	ContentTypeWAV = "audio/wav"
)

// EncodeWAV 把小端 16-bit PCM 封装为 WAV
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: wavChannels, SampleRate: sampleRate},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, len(pcm)/2),
	}
	for i := range buffer.Data {
		buffer.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	// wav.Encoder 需要 io.WriteSeeker 回填头部长度，直接在内存中完成
	out := &seekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, wavBitDepth, wavChannels, wavPCMFormat)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.buf, nil
}

// seekBuffer 内存中的 io.WriteSeeker
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	b.pos = int(next)
	return next, nil
}

// pcmDurationMillis 根据采样率估算 16-bit 单声道 PCM 的时长
func pcmDurationMillis(pcm []byte, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	samples := int64(len(pcm) / 2)
	return samples * 1000 / int64(sampleRate)
}
