package progress

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	certSalt = []byte("oasis.core.progress.certificate")
	b32      = base32.StdEncoding.WithPadding(base32.NoPadding)

	ErrInvalidCertificate = errors.New("invalid certificate id")
)

// CertificateSigner makes and checks certificate ids of the form "<progress id>.<day>.<signature>",
// so a certificate can be told genuine without looking it up.
type CertificateSigner struct {
	key     [sha256.Size]byte
	baseURL string
}

func NewCertificateSigner(secret, baseURL string) *CertificateSigner {
	return &CertificateSigner{
		key:     sha256.Sum256(append(append([]byte{}, certSalt...), secret...)),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// MakeID generates the certificate id of a progress record issued at `issuedAt`.
func (s *CertificateSigner) MakeID(progressID string, issuedAt time.Time) string {
	return s.makeIDWithDay(progressID, numDaysSince2001(issuedAt))
}

// VerifyID checks that `id` has not been tampered with and returns the progress id it carries.
func (s *CertificateSigner) VerifyID(id string) (string, error) {
	parts := strings.Split(id, ".")
	if len(parts) != 3 {
		return "", ErrInvalidCertificate
	}

	pidBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidCertificate
	}
	dayBytes, err := b32.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidCertificate
	}
	day, err := strconv.Atoi(string(dayBytes))
	if err != nil {
		return "", ErrInvalidCertificate
	}

	progressID := string(pidBytes)
	if subtle.ConstantTimeCompare([]byte(s.makeIDWithDay(progressID, day)), []byte(id)) == 0 {
		return "", ErrInvalidCertificate
	}
	return progressID, nil
}

// DownloadURL is where the rendered certificate `id` can be fetched.
func (s *CertificateSigner) DownloadURL(id string) string {
	return fmt.Sprintf("%s/certificates/%s", s.baseURL, id)
}

func (s *CertificateSigner) makeIDWithDay(progressID string, day int) string {
	pid := base64.RawURLEncoding.EncodeToString([]byte(progressID))
	dayB32 := b32.EncodeToString([]byte(strconv.Itoa(day)))
	return fmt.Sprintf("%s.%s.%s", pid, dayB32, s.sign(progressID, day))
}

func (s *CertificateSigner) sign(progressID string, day int) string {
	var val bytes.Buffer
	val.WriteString(progressID)
	val.WriteString(strconv.Itoa(day))

	h := hmac.New(sha256.New, s.key[:])
	_, _ = h.Write(val.Bytes())
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}
