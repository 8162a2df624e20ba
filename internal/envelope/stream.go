package envelope

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
)

// ChunkSize is the amount of ciphertext decrypted per read from the source.
const ChunkSize = 32 * 1024

// NewReader returns a reader that decrypts src incrementally.
//
// The GCM tag can only be checked once the whole ciphertext has been read, so
// the last decrypted chunk is held back until then. If the tag does not verify
// the reader returns ErrIntegrity instead of io.EOF and the held-back chunk is
// discarded. Callers must treat ErrIntegrity as fatal for the whole stream.
//
// Assets are limited to 64 GiB per IV (2^32 counter blocks).
func (s *Service) NewReader(src io.Reader, env Envelope) (io.Reader, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}

	var j0 [16]byte
	copy(j0[:], env.IV)
	j0[15] = 1

	r := &streamReader{
		src:   src,
		hash:  newGHash(s.block),
		tag:   append([]byte(nil), env.AuthTag...),
		bufIn: make([]byte, ChunkSize),
		bufA:  make([]byte, ChunkSize),
		bufB:  make([]byte, ChunkSize),
	}
	s.block.Encrypt(r.tagMask[:], j0[:])

	counter := j0
	binary.BigEndian.PutUint32(counter[12:], 2)
	r.ctr = cipher.NewCTR(s.block, counter[:])

	return r, nil
}

type streamReader struct {
	src     io.Reader
	ctr     cipher.Stream
	hash    *ghash
	tag     []byte
	tagMask [16]byte
	length  uint64

	bufIn      []byte
	bufA, bufB []byte
	ready      []byte
	pending    []byte
	err        error
}

func (r *streamReader) Read(p []byte) (int, error) {
	for len(r.ready) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fill()
	}
	n := copy(p, r.ready)
	r.ready = r.ready[n:]
	return n, nil
}

func (r *streamReader) fill() {
	n, err := r.src.Read(r.bufIn)
	if n > 0 {
		ct := r.bufIn[:n]
		r.hash.write(ct)
		r.length += uint64(n)

		// release the previously withheld chunk and withhold the new one
		r.bufA, r.bufB = r.bufB, r.bufA
		r.ready = r.bufA[:len(r.pending)]
		r.pending = r.bufB[:n]
		r.ctr.XORKeyStream(r.pending, ct)
	}

	switch {
	case err == io.EOF:
		sum := r.hash.sum(r.length, &r.tagMask)
		if subtle.ConstantTimeCompare(sum[:], r.tag) != 1 {
			r.ready, r.pending = nil, nil
			r.err = ErrIntegrity
			return
		}
		r.ready = append(r.ready, r.pending...)
		r.pending = nil
		r.err = io.EOF
	case err != nil:
		r.ready, r.pending = nil, nil
		r.err = fmt.Errorf("read ciphertext: %w", err)
	}
}
