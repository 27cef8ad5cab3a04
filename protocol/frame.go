package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

var ErrFrameSize = errors.New("frame size is invalid")

// ReadFrame reads one length-prefixed frame: a big endian uint32 length followed by the payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint32

	err := binary.Read(r, binary.BigEndian, &length)
	if err != nil {
		return nil, err
	}

	if length == 0 || length > MaxFrameSize {
		return nil, ErrFrameSize
	}

	data := make([]byte, length)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return ErrFrameSize
	}

	var length = uint32(len(payload))

	err := binary.Write(w, binary.BigEndian, length)
	if err != nil {
		return err
	}

	_, err = w.Write(payload)
	return err
}

func Send(w io.Writer, e *Envelope) error {
	out, err := Marshal(e)
	if err != nil {
		return err
	}
	return WriteFrame(w, out)
}

func Receive(r io.Reader) (*Envelope, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
