// Package pix builds and checks PIX "copia e cola" payloads (EMV BR Code).
package pix

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	gui            = "br.gov.bcb.pix"
	maxNameLen     = 25
	maxCityLen     = 15
	maxTxIDLen     = 25
	currencyBRL    = "986"
	countryBR      = "BR"
	crcFieldPrefix = "6304"
)

var (
	ErrMissingKey = errors.New("pix key is required")
	ErrInvalid    = errors.New("invalid pix payload")

	txidChars = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// Payment describes one static charge.
type Payment struct {
	Key          string
	MerchantName string
	MerchantCity string
	AmountCents  int64
	TxID         string
	Description  string
}

// Build renders the copy-paste string including the trailing CRC.
func Build(p Payment) (string, error) {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return "", ErrMissingKey
	}

	account := field("00", gui) + field("01", key)
	if d := ascii(p.Description); d != "" {
		// the whole template is capped at 99 characters
		room := 99 - len(account) - 4
		if room > 0 {
			account += field("02", truncate(d, room))
		}
	}

	name := truncate(ascii(p.MerchantName), maxNameLen)
	if name == "" {
		name = "N"
	}
	city := truncate(strings.ToUpper(ascii(p.MerchantCity)), maxCityLen)
	if city == "" {
		city = "SAO PAULO"
	}
	txid := truncate(txidChars.ReplaceAllString(p.TxID, ""), maxTxIDLen)
	if txid == "" {
		txid = "***"
	}

	var b strings.Builder
	b.WriteString(field("00", "01"))
	b.WriteString(field("26", account))
	b.WriteString(field("52", "0000"))
	b.WriteString(field("53", currencyBRL))
	if p.AmountCents > 0 {
		b.WriteString(field("54", FormatAmount(p.AmountCents)))
	}
	b.WriteString(field("58", countryBR))
	b.WriteString(field("59", name))
	b.WriteString(field("60", city))
	b.WriteString(field("62", field("05", txid)))
	b.WriteString(crcFieldPrefix)

	payload := b.String()
	return payload + fmt.Sprintf("%04X", CRC16(payload)), nil
}

// FormatAmount renders cents as "12.50".
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// Validate checks TLV framing and the CRC of a copy-paste string.
func Validate(code string) error {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "000201") || len(code) < 12 {
		return ErrInvalid
	}
	body, sum := code[:len(code)-4], code[len(code)-4:]
	if !strings.HasSuffix(body, crcFieldPrefix) {
		return ErrInvalid
	}
	want, err := strconv.ParseUint(sum, 16, 16)
	if err != nil {
		return ErrInvalid
	}
	if uint16(want) != CRC16(body) {
		return ErrInvalid
	}
	if _, err := Parse(code); err != nil {
		return err
	}
	return nil
}

// Parse splits the top level TLV fields by id.
func Parse(code string) (map[string]string, error) {
	out := map[string]string{}
	for i := 0; i < len(code); {
		if i+4 > len(code) {
			return nil, ErrInvalid
		}
		id := code[i : i+2]
		n, err := strconv.Atoi(code[i+2 : i+4])
		if err != nil || i+4+n > len(code) {
			return nil, ErrInvalid
		}
		out[id] = code[i+4 : i+4+n]
		i += 4 + n
	}
	return out, nil
}

// CRC16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF).
func CRC16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func ascii(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, r := range folded {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n])
}
