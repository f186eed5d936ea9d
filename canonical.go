package cryptotran

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// AmountEncoding selects how Transaction.Amount is written in the
// canonical encoding. Changing it changes every signature and hash.
type AmountEncoding int

const (
	// AmountFloat64 writes the amount as an IEEE-754 double in shortest
	// round-trip form ("100.0", "0.1", "1e16"). Hashes and signatures are
	// byte-compatible with peers that store amounts as doubles. Amounts
	// with no exact double form fail with ErrUnrepresentable.
	AmountFloat64 AmountEncoding = iota

	// AmountDecimal writes the exact decimal value as a JSON string
	// ("100.5"). No precision is lost, but the encoding differs from
	// AmountFloat64 for every amount, so ledgers cannot mix the two.
	AmountDecimal
)

// String returns the configuration name of the encoding.
func (e AmountEncoding) String() string {
	switch e {
	case AmountFloat64:
		return "float64"
	case AmountDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("AmountEncoding(%d)", int(e))
	}
}

// ParseAmountEncoding parses "float64" or "decimal".
func ParseAmountEncoding(s string) (AmountEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float64", "float":
		return AmountFloat64, nil
	case "decimal":
		return AmountDecimal, nil
	default:
		return 0, fmt.Errorf("unknown amount encoding %q", s)
	}
}

// Codec produces the canonical byte encoding of transactions.
//
// The encoding is a compact JSON object with the keys id, sender_id,
// recipient_id, amount, timestamp, signature, prev_hash, current_hash in
// that order. Absent optional fields are written as null. Two encodings of
// equal content are always byte-identical.
type Codec struct {
	Amount AmountEncoding
}

// DefaultCodec is the codec used by the package-level functions.
var DefaultCodec = Codec{Amount: AmountFloat64}

type fieldMask uint8

const (
	omitSignature fieldMask = 1 << iota
	omitPrevHash
	omitCurrentHash
)

// Encode returns the full wire form of tx with every field present.
func (c Codec) Encode(tx *Transaction) ([]byte, error) {
	return c.encode(tx, 0)
}

// ContentBytes returns the encoding signatures are computed over:
// signature, prev_hash and current_hash are written as null.
func (c Codec) ContentBytes(tx *Transaction) ([]byte, error) {
	return c.encode(tx, omitSignature|omitPrevHash|omitCurrentHash)
}

// LinkBytes returns the encoding the current hash is computed over:
// signature and current_hash are written as null, prev_hash is kept.
func (c Codec) LinkBytes(tx *Transaction) ([]byte, error) {
	return c.encode(tx, omitSignature|omitCurrentHash)
}

func (c Codec) encode(tx *Transaction, mask fieldMask) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}

	var buf bytes.Buffer
	buf.Grow(256)

	buf.WriteString(`{"id":`)
	if err := writeString(&buf, tx.ID); err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	buf.WriteString(`,"sender_id":`)
	if err := writeString(&buf, tx.SenderID); err != nil {
		return nil, fmt.Errorf("sender_id: %w", err)
	}
	buf.WriteString(`,"recipient_id":`)
	if err := writeString(&buf, tx.RecipientID); err != nil {
		return nil, fmt.Errorf("recipient_id: %w", err)
	}
	buf.WriteString(`,"amount":`)
	if err := c.writeAmount(&buf, tx.Amount); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	buf.WriteString(`,"timestamp":`)
	buf.WriteString(strconv.FormatInt(tx.Timestamp, 10))

	optional := []struct {
		key  string
		val  *string
		omit bool
	}{
		{"signature", tx.Signature, mask&omitSignature != 0},
		{"prev_hash", tx.PrevHash, mask&omitPrevHash != 0},
		{"current_hash", tx.CurrentHash, mask&omitCurrentHash != 0},
	}
	for _, f := range optional {
		buf.WriteString(`,"`)
		buf.WriteString(f.key)
		buf.WriteString(`":`)
		if f.omit || f.val == nil {
			buf.WriteString("null")
			continue
		}
		if err := writeString(&buf, *f.val); err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (c Codec) writeAmount(buf *bytes.Buffer, amount decimal.Decimal) error {
	switch c.Amount {
	case AmountFloat64:
		f, err := float64Amount(amount)
		if err != nil {
			return err
		}
		s, err := formatFloat(f)
		if err != nil {
			return err
		}
		buf.WriteString(s)
		return nil
	case AmountDecimal:
		return writeString(buf, amount.String())
	default:
		return fmt.Errorf("%w: amount encoding %d", ErrUnrepresentable, int(c.Amount))
	}
}

// float64Amount converts amount to the double it is signed as. Amounts
// whose shortest double form is not the same decimal are rejected, so one
// encoding never covers two different stored amounts.
func float64Amount(amount decimal.Decimal) (float64, error) {
	f, _ := amount.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s overflows float64", ErrUnrepresentable, amount)
	}
	if !decimal.NewFromFloat(f).Equal(amount) {
		return 0, fmt.Errorf("%w: %s is not exact as float64", ErrUnrepresentable, amount)
	}
	return f, nil
}

// Decode parses the wire form of a transaction. Keys match exactly and
// may appear once; unknown keys are ignored. id, sender_id, recipient_id,
// amount and timestamp are required.
func (c Codec) Decode(data []byte) (*Transaction, error) {
	fields, err := objectFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	var wire struct {
		ID          *string
		SenderID    *string
		RecipientID *string
		Timestamp   *int64
		Signature   *string
		PrevHash    *string
		CurrentHash *string
	}
	targets := []struct {
		key string
		dst any
	}{
		{"id", &wire.ID},
		{"sender_id", &wire.SenderID},
		{"recipient_id", &wire.RecipientID},
		{"timestamp", &wire.Timestamp},
		{"signature", &wire.Signature},
		{"prev_hash", &wire.PrevHash},
		{"current_hash", &wire.CurrentHash},
	}
	for _, t := range targets {
		raw, ok := fields[t.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, t.dst); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTransaction, t.key, err)
		}
	}
	rawAmount := fields["amount"]

	var missing []string
	if wire.ID == nil {
		missing = append(missing, "id")
	}
	if wire.SenderID == nil {
		missing = append(missing, "sender_id")
	}
	if wire.RecipientID == nil {
		missing = append(missing, "recipient_id")
	}
	if len(rawAmount) == 0 || string(rawAmount) == "null" {
		missing = append(missing, "amount")
	}
	if wire.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing field(s) %s", ErrInvalidTransaction, strings.Join(missing, ", "))
	}

	amount, err := parseAmount(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrInvalidTransaction, err)
	}
	if c.Amount == AmountFloat64 {
		if _, err := float64Amount(amount); err != nil {
			return nil, fmt.Errorf("%w: amount: %v", ErrInvalidTransaction, err)
		}
	}

	return &Transaction{
		ID:          *wire.ID,
		SenderID:    *wire.SenderID,
		RecipientID: *wire.RecipientID,
		Amount:      amount,
		Timestamp:   *wire.Timestamp,
		Signature:   wire.Signature,
		PrevHash:    wire.PrevHash,
		CurrentHash: wire.CurrentHash,
	}, nil
}

// objectFields splits a single JSON object into its raw member values.
// encoding/json alone would fold key case and keep the last of repeated
// keys; both are errors here.
func objectFields(data []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	fields := make(map[string]json.RawMessage, 8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after object")
	}
	return fields, nil
}

func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

// writeString writes s as a JSON string. Only the quote, the backslash and
// control characters are escaped; all other text is written verbatim.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: invalid UTF-8", ErrUnrepresentable)
	}

	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 0x20 && b != '"' && b != '\\' {
			continue
		}
		buf.WriteString(s[start:i])
		switch b {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(hex[b>>4])
			buf.WriteByte(hex[b&0xf])
		}
		start = i + 1
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
	return nil
}

// formatFloat renders f in shortest round-trip form. Magnitudes in
// [1e-5, 1e16) use positional notation and always carry a fractional
// part; everything else uses d.ddde±x with no exponent padding.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrUnrepresentable, f)
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0", nil
		}
		return "0.0", nil
	}

	// Shortest digits: "-d.dddde±XX".
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	var sign string
	if sci[0] == '-' {
		sign, sci = "-", sci[1:]
	}
	mantissa, expPart, _ := strings.Cut(sci, "e")
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnrepresentable, err)
	}
	digits := strings.Replace(mantissa, ".", "", 1)
	n := len(digits)
	// Value is 0.digits × 10^point.
	point := exp + 1

	var b strings.Builder
	b.WriteString(sign)
	switch {
	case point >= n && point <= 16:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", point-n))
		b.WriteString(".0")
	case point > 0 && point <= 16:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	case point > -5 && point <= 0:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	default:
		b.WriteByte(digits[0])
		if n > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		b.WriteString(strconv.Itoa(point - 1))
	}
	return b.String(), nil
}
