package speech

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// maxInflatedFrame 单个服务端帧解压后的上限
const maxInflatedFrame = 8 << 20

var (
	// ErrUnsupportedCompression 帧头声明了未知压缩方式
	ErrUnsupportedCompression = errors.New("unsupported compression method")
	errFrameTooLarge          = errors.New("inflated frame exceeds limit")
)

// CompressPayload 按帧头声明的方式压缩客户端请求体
func CompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, method)
	}
}

// DecompressPayload 解压服务端帧，解压后超过 maxInflatedFrame 视为损坏帧
func DecompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()

		out, err := io.ReadAll(io.LimitReader(zr, maxInflatedFrame+1))
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		if len(out) > maxInflatedFrame {
			return nil, errFrameTooLarge
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, method)
	}
}
