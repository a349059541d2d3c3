// Package sqids encodes sequences of unsigned integers into short, reversible
// IDs over a configurable alphabet, and decodes them back.
//
// The scheme is obfuscation, not encryption: anyone who knows the alphabet can
// decode an ID. Generated IDs avoid configurable blocklisted words.
package sqids

import "errors"

// DefaultAlphabet is used when Options.Alphabet is empty.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// minAlphabetLength 保证去掉分隔符之后仍然至少是 2 进制。
const minAlphabetLength = 3

var (
	ErrAttemptsExhausted = errors.New("sqids: reached max attempts to re-generate the id")
	ErrAlphabetTooShort  = errors.New("sqids: alphabet length must be at least 3")
	ErrAlphabetNotUnique = errors.New("sqids: alphabet must contain unique characters")
	ErrAlphabetMultibyte = errors.New("sqids: alphabet cannot contain multibyte characters")
)

// Options configures a Sqids codec. The zero value selects the default
// alphabet, no padding and no blocklist.
type Options struct {
	Alphabet  string
	MinLength uint8
	Blocklist []string
}

// Sqids is an immutable codec; it is safe for concurrent use.
type Sqids struct {
	alphabet  string
	shuffled  []byte
	table     *indexTable
	minLength int
	blocklist []string
}

// New validates options and prepares the shuffled base alphabet and the
// filtered blocklist.
func New(opts Options) (*Sqids, error) {
	alphabet := opts.Alphabet
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if err := validateAlphabet(alphabet); err != nil {
		return nil, err
	}

	shuffled := []byte(alphabet)
	shuffle(shuffled)

	return &Sqids{
		alphabet:  alphabet,
		shuffled:  shuffled,
		table:     newIndexTable(shuffled),
		minLength: int(opts.MinLength),
		blocklist: filterBlocklist(opts.Blocklist, alphabet),
	}, nil
}

func validateAlphabet(alphabet string) error {
	var seen [256]bool
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] >= 0x80 {
			return ErrAlphabetMultibyte
		}
	}
	if len(alphabet) < minAlphabetLength {
		return ErrAlphabetTooShort
	}
	for i := 0; i < len(alphabet); i++ {
		if seen[alphabet[i]] {
			return ErrAlphabetNotUnique
		}
		seen[alphabet[i]] = true
	}
	return nil
}

// Alphabet returns the configured, unshuffled alphabet.
func (s *Sqids) Alphabet() string {
	return s.alphabet
}

// MinLength returns the configured minimum ID length.
func (s *Sqids) MinLength() int {
	return s.minLength
}

// Blocklist returns a copy of the filtered, lowercased blocklist.
func (s *Sqids) Blocklist() []string {
	return append([]string(nil), s.blocklist...)
}

// Encode turns numbers into an ID. An empty input yields an empty ID.
// It fails with ErrAttemptsExhausted when every candidate is blocklisted.
func (s *Sqids) Encode(numbers []uint64) (string, error) {
	id, _, err := s.EncodeAttempts(numbers)
	return id, err
}

// EncodeAttempts is Encode that also reports how many candidate IDs were
// rejected by the blocklist before the returned one.
func (s *Sqids) EncodeAttempts(numbers []uint64) (string, int, error) {
	if len(numbers) == 0 {
		return "", 0, nil
	}
	return s.encodeNumbers(numbers)
}

// Decode turns an ID back into numbers. Malformed input is not an error:
// an empty or foreign-character ID decodes to an empty slice.
func (s *Sqids) Decode(id string) []uint64 {
	return s.decode(id)
}

// Canonical reports whether id is exactly what Encode would produce for the
// numbers it decodes to. Junk suffixes and hand-made IDs fail this check.
func (s *Sqids) Canonical(id string) bool {
	numbers := s.decode(id)
	if len(numbers) == 0 {
		return false
	}
	again, err := s.Encode(numbers)
	return err == nil && again == id
}

// Encode is a convenience wrapper around New(opts).Encode(numbers).
func Encode(numbers []uint64, opts Options) (string, error) {
	s, err := New(opts)
	if err != nil {
		return "", err
	}
	return s.Encode(numbers)
}

// Decode is a convenience wrapper around New(Options{Alphabet: alphabet}).Decode(id).
// An invalid alphabet decodes every ID to an empty slice.
func Decode(id string, alphabet string) []uint64 {
	s, err := New(Options{Alphabet: alphabet})
	if err != nil {
		return []uint64{}
	}
	return s.Decode(id)
}

// String 只暴露配置，方便日志打印。
func (s *Sqids) String() string {
	return "sqids{alphabet=" + s.alphabet + "}"
}
