// Package ingest bridges a local decode process to the playback session.
// Decoded audio, YUV420P frames and still images arrive over a websocket or
// UDP, are decoded from a small binary message format and pushed into a
// Sink.
package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/example/castreceiver/internal/video"
)

// Kind identifies the payload of a message.
type Kind byte

const (
	KindAudio Kind = 1
	KindVideo Kind = 2
	KindStill Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindStill:
		return "still"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// videoHeaderSize is kind + width + height + three strides.
const videoHeaderSize = 1 + 2 + 2 + 4*3

var (
	ErrShortMessage = errors.New("ingest: short message")
	ErrUnknownKind  = errors.New("ingest: unknown message kind")
)

// Message is a decoded ingest message. Its slices alias the buffer it was
// decoded from.
type Message struct {
	Kind  Kind
	Audio []byte
	Video video.Frame
	// Still is an encoded WebP, PNG, JPEG or GIF image.
	Still []byte
}

// Sink receives decoded media. playback.Surface satisfies it.
type Sink interface {
	PushAudio(p []byte) error
	PushVideoFrame(f video.Frame) error
}

// EncodeAudio frames interleaved samples:
//
//	kind(1) | samples...
func EncodeAudio(samples []byte) []byte {
	buf := make([]byte, 1+len(samples))
	buf[0] = byte(KindAudio)
	copy(buf[1:], samples)
	return buf
}

// EncodeStill frames an encoded still image:
//
//	kind(1) | image file bytes...
func EncodeStill(img []byte) []byte {
	buf := make([]byte, 1+len(img))
	buf[0] = byte(KindStill)
	copy(buf[1:], img)
	return buf
}

// EncodeVideo frames a YUV420P picture:
//
//	kind(1) | width u16 | height u16 | yStride u32 | uStride u32 | vStride u32 | Y | U | V
//
// Each plane is written as stride*rows bytes, zero padded if the caller's
// last row was shorter than the stride.
func EncodeVideo(f video.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.Width > 0xffff || f.Height > 0xffff {
		return nil, fmt.Errorf("%w: %dx%d exceeds wire limits", video.ErrInvalidFrame, f.Width, f.Height)
	}
	_, ch := video.ChromaSize(f.Width, f.Height)
	ySize := f.YStride * f.Height
	uSize := f.UStride * ch
	vSize := f.VStride * ch

	buf := make([]byte, videoHeaderSize+ySize+uSize+vSize)
	buf[0] = byte(KindVideo)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(f.Width))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(f.Height))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(f.YStride))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(f.UStride))
	binary.LittleEndian.PutUint32(buf[13:17], uint32(f.VStride))

	off := videoHeaderSize
	copy(buf[off:off+ySize], f.Y)
	off += ySize
	copy(buf[off:off+uSize], f.U)
	off += uSize
	copy(buf[off:off+vSize], f.V)
	return buf, nil
}

// Decode parses one message without copying.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return Message{}, ErrShortMessage
	}
	switch Kind(data[0]) {
	case KindAudio:
		return Message{Kind: KindAudio, Audio: data[1:]}, nil
	case KindVideo:
		return decodeVideo(data)
	case KindStill:
		return Message{Kind: KindStill, Still: data[1:]}, nil
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
}

func decodeVideo(data []byte) (Message, error) {
	if len(data) < videoHeaderSize {
		return Message{}, fmt.Errorf("%w: video header needs %d bytes, got %d", ErrShortMessage, videoHeaderSize, len(data))
	}
	f := video.Frame{
		Width:   int(binary.LittleEndian.Uint16(data[1:3])),
		Height:  int(binary.LittleEndian.Uint16(data[3:5])),
		YStride: int(binary.LittleEndian.Uint32(data[5:9])),
		UStride: int(binary.LittleEndian.Uint32(data[9:13])),
		VStride: int(binary.LittleEndian.Uint32(data[13:17])),
	}
	_, ch := video.ChromaSize(f.Width, f.Height)
	ySize := f.YStride * f.Height
	uSize := f.UStride * ch
	vSize := f.VStride * ch

	body := data[videoHeaderSize:]
	if need := ySize + uSize + vSize; len(body) < need {
		return Message{}, fmt.Errorf("%w: %dx%d planes need %d bytes, got %d", ErrShortMessage, f.Width, f.Height, need, len(body))
	}
	f.Y = body[:ySize]
	f.U = body[ySize : ySize+uSize]
	f.V = body[ySize+uSize : ySize+uSize+vSize]
	return Message{Kind: KindVideo, Video: f}, nil
}

// Dispatch decodes data and pushes the payload into sink.
func Dispatch(sink Sink, data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		return err
	}
	switch msg.Kind {
	case KindAudio:
		return sink.PushAudio(msg.Audio)
	case KindStill:
		f, err := DecodeStill(msg.Still)
		if err != nil {
			return err
		}
		return sink.PushVideoFrame(f)
	default:
		return sink.PushVideoFrame(msg.Video)
	}
}
