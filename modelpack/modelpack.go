// Package modelpack reads and writes the .rp model container shared with
// the training tool: a fixed magic header, an MD5 digest of the plain
// weights, then the weights XOR-obfuscated with a single-byte key. This
// is distribution obfuscation with an integrity check, not cryptography.
package modelpack

import (
	"bytes"
	"crypto/md5"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "modelpack")

const xorKey = 0x5A

// magic must match the trainer byte-for-byte.
var magic = []byte("PILL_MODEL_RP_2026")

// ErrBadHeader means the file is not an .rp container.
var ErrBadHeader = errors.New("not an rp model file")

// ErrCorrupt means the body failed its integrity check.
var ErrCorrupt = errors.New("rp model integrity check failed")

// Pack writes the weights at src into an .rp container at dst.
func Pack(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}

	sum := md5.Sum(data)
	out := make([]byte, 0, len(magic)+len(sum)+len(data))
	out = append(out, magic...)
	out = append(out, sum[:]...)
	out = append(out, xorBytes(data)...)

	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	log.Infof("packed %s -> %s", src, dst)
	return nil
}

// Unpack restores the plain weights from an .rp container, verifying the
// header and the digest.
func Unpack(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}
	if len(data) < len(magic)+md5.Size || !bytes.Equal(data[:len(magic)], magic) {
		return errors.Wrapf(ErrBadHeader, "%s", src)
	}

	sum := data[len(magic) : len(magic)+md5.Size]
	plain := xorBytes(data[len(magic)+md5.Size:])
	if got := md5.Sum(plain); !bytes.Equal(got[:], sum) {
		return errors.Wrapf(ErrCorrupt, "%s", src)
	}

	if err := os.WriteFile(dst, plain, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", dst)
	}
	log.Infof("unpacked %s -> %s", src, dst)
	return nil
}

// IsPacked reports whether the file starts with the .rp magic.
func IsPacked(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, len(magic))
	if _, err := f.Read(header); err != nil {
		return false
	}
	return bytes.Equal(header, magic)
}

func xorBytes(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ xorKey
	}
	return out
}
