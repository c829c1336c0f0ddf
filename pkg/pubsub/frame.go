package pubsub

import (
	"encoding/binary"
	"fmt"
	"time"
)

// frameHeaderSize is sample_rate + channels + hotword + length, 4 bytes each.
const frameHeaderSize = 16

// AudioFrame is one block of processed audio from the DSP sidecar.
// Wire format (little endian):
// [4 sample_rate][4 channels][4 hotword][4 sample count][samples...]
type AudioFrame struct {
	SampleRate int
	Channels   int
	Hotword    int // 0 = none, >= 1 = which wake word fired
	Samples    []int16
	Timestamp  time.Time
}

// Encode serializes the frame for transmission.
func (f *AudioFrame) Encode() []byte {
	buf := make([]byte, frameHeaderSize+len(f.Samples)*2)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.Channels))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(f.Hotword)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(f.Samples)))

	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(buf[frameHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// Decode deserializes a frame from wire format.
func (f *AudioFrame) Decode(data []byte) error {
	if len(data) < frameHeaderSize {
		return fmt.Errorf("pubsub: frame too short: %d bytes", len(data))
	}

	f.SampleRate = int(binary.LittleEndian.Uint32(data[0:4]))
	f.Channels = int(binary.LittleEndian.Uint32(data[4:8]))
	f.Hotword = int(int32(binary.LittleEndian.Uint32(data[8:12])))
	length := int(binary.LittleEndian.Uint32(data[12:16]))

	need := frameHeaderSize + length*2
	if length < 0 || len(data) < need {
		return fmt.Errorf("pubsub: frame too short for declared length: got %d, need %d", len(data), need)
	}

	f.Samples = make([]int16, length)
	for i := range f.Samples {
		f.Samples[i] = int16(binary.LittleEndian.Uint16(data[frameHeaderSize+i*2:]))
	}
	f.Timestamp = time.Now()
	return nil
}

// PCM returns the samples as little-endian PCM16 bytes.
func (f *AudioFrame) PCM() []byte {
	out := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DOA is a direction-of-arrival reading, in degrees.
type DOA struct {
	Angle int `json:"angle"`
}
