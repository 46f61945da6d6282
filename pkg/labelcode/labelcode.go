// Package labelcode formats and parses the positional batch and serial codes
// printed on labels. It has no storage dependencies and can be used by
// scanners and label printers directly.
//
// Batch number (17 digits):
//
//	site(3) type(2) YYYYMMDD(8) sequence(4)
//
// Serial full code (35 characters):
//
//	site(3) strain(4) type(2) YYYYMMDD(8) batchSeq(4) unitSeq(5) weight(6) pack(3)
//
// Serial short code (15 digits):
//
//	site(3) YYMMDD(6) dailySeq(5) luhn(1)
package labelcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BatchLen       = 17
	SerialFullLen  = 35
	SerialShortLen = 15

	MaxBatchSequence = 9999
	MaxUnitSequence  = 99999
	MaxDailySequence = 99999
	MaxPackQty       = 999
	DefaultStrain    = "0000"
)

// MaxWeight is the largest weight in grams that fits the 6-digit centigram field.
var MaxWeight = decimal.RequireFromString("9999.99")

// ErrMalformed is wrapped by every parse error.
var ErrMalformed = errors.New("malformed code")

// Batch holds the fields of a batch number.
type Batch struct {
	SiteID   int
	TypeCode string
	Date     time.Time
	Sequence int
}

// FormatBatch renders a batch number.
func FormatBatch(b Batch) (string, error) {
	if err := checkSite(b.SiteID); err != nil {
		return "", err
	}
	if err := checkTypeCode(b.TypeCode); err != nil {
		return "", err
	}
	if b.Sequence < 1 || b.Sequence > MaxBatchSequence {
		return "", fmt.Errorf("batch sequence %d out of range 1..%d", b.Sequence, MaxBatchSequence)
	}
	return fmt.Sprintf("%03d%s%s%04d", b.SiteID, b.TypeCode, b.Date.Format("20060102"), b.Sequence), nil
}

// ParseBatch splits a batch number into its fields.
func ParseBatch(code string) (Batch, error) {
	if len(code) != BatchLen || !allDigits(code) {
		return Batch{}, fmt.Errorf("%w: batch number must be %d digits", ErrMalformed, BatchLen)
	}
	date, err := time.Parse("20060102", code[5:13])
	if err != nil {
		return Batch{}, fmt.Errorf("%w: batch date: %v", ErrMalformed, err)
	}
	return Batch{
		SiteID:   atoi(code[0:3]),
		TypeCode: code[3:5],
		Date:     date,
		Sequence: atoi(code[13:17]),
	}, nil
}

// Serial holds the fields of a serial number.
type Serial struct {
	SiteID        int
	StrainCode    string
	TypeCode      string
	Date          time.Time
	BatchSequence int
	UnitSequence  int
	DailySequence int
	Weight        decimal.Decimal
	PackQty       int
}

// BatchNumber returns the batch number the serial belongs to.
func (s Serial) BatchNumber() (string, error) {
	return FormatBatch(Batch{SiteID: s.SiteID, TypeCode: s.TypeCode, Date: s.Date, Sequence: s.BatchSequence})
}

// NormalizeStrain upper-cases and left-pads a strain code to 4 characters.
func NormalizeStrain(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultStrain, nil
	}
	if len(code) > 4 {
		return "", fmt.Errorf("strain code %q longer than 4 characters", code)
	}
	for _, r := range code {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') {
			return "", fmt.Errorf("strain code %q must be alphanumeric", code)
		}
	}
	return strings.Repeat("0", 4-len(code)) + code, nil
}

// EncodeWeight converts grams to the 6-digit centigram field.
func EncodeWeight(grams decimal.Decimal) (string, error) {
	if grams.IsNegative() {
		return "", fmt.Errorf("weight %s must not be negative", grams)
	}
	if grams.GreaterThan(MaxWeight) {
		return "", fmt.Errorf("weight %s exceeds %s g", grams, MaxWeight)
	}
	centi := grams.Shift(2)
	if !centi.Equal(centi.Truncate(0)) {
		return "", fmt.Errorf("weight %s has more than 2 decimals", grams)
	}
	return fmt.Sprintf("%06d", centi.IntPart()), nil
}

// DecodeWeight converts the 6-digit centigram field back to grams.
func DecodeWeight(field string) (decimal.Decimal, error) {
	if len(field) != 6 || !allDigits(field) {
		return decimal.Zero, fmt.Errorf("%w: weight field %q", ErrMalformed, field)
	}
	return decimal.New(int64(atoi(field)), -2), nil
}

// FormatSerialFull renders the 35-character serial code.
func FormatSerialFull(s Serial) (string, error) {
	if err := checkSite(s.SiteID); err != nil {
		return "", err
	}
	if err := checkTypeCode(s.TypeCode); err != nil {
		return "", err
	}
	strain, err := NormalizeStrain(s.StrainCode)
	if err != nil {
		return "", err
	}
	if s.BatchSequence < 1 || s.BatchSequence > MaxBatchSequence {
		return "", fmt.Errorf("batch sequence %d out of range 1..%d", s.BatchSequence, MaxBatchSequence)
	}
	if s.UnitSequence < 1 || s.UnitSequence > MaxUnitSequence {
		return "", fmt.Errorf("unit sequence %d out of range 1..%d", s.UnitSequence, MaxUnitSequence)
	}
	if s.PackQty < 1 || s.PackQty > MaxPackQty {
		return "", fmt.Errorf("pack quantity %d out of range 1..%d", s.PackQty, MaxPackQty)
	}
	weight, err := EncodeWeight(s.Weight)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%03d%s%s%s%04d%05d%s%03d",
		s.SiteID, strain, s.TypeCode, s.Date.Format("20060102"),
		s.BatchSequence, s.UnitSequence, weight, s.PackQty), nil
}

// ParseSerialFull splits a 35-character serial code. DailySequence is not
// part of the full code and is left zero.
func ParseSerialFull(code string) (Serial, error) {
	if len(code) != SerialFullLen {
		return Serial{}, fmt.Errorf("%w: serial must be %d characters", ErrMalformed, SerialFullLen)
	}
	numeric := code[0:3] + code[7:35]
	if !allDigits(numeric) {
		return Serial{}, fmt.Errorf("%w: serial has non-digit in numeric fields", ErrMalformed)
	}
	strain, err := NormalizeStrain(code[3:7])
	if err != nil {
		return Serial{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	date, err := time.Parse("20060102", code[9:17])
	if err != nil {
		return Serial{}, fmt.Errorf("%w: serial date: %v", ErrMalformed, err)
	}
	weight, err := DecodeWeight(code[26:32])
	if err != nil {
		return Serial{}, err
	}
	return Serial{
		SiteID:        atoi(code[0:3]),
		StrainCode:    strain,
		TypeCode:      code[7:9],
		Date:          date,
		BatchSequence: atoi(code[17:21]),
		UnitSequence:  atoi(code[21:26]),
		Weight:        weight,
		PackQty:       atoi(code[32:35]),
	}, nil
}

// FormatSerialShort renders the 15-digit short code with its Luhn digit.
func FormatSerialShort(siteID int, date time.Time, dailySeq int) (string, error) {
	if err := checkSite(siteID); err != nil {
		return "", err
	}
	if dailySeq < 1 || dailySeq > MaxDailySequence {
		return "", fmt.Errorf("daily sequence %d out of range 1..%d", dailySeq, MaxDailySequence)
	}
	body := fmt.Sprintf("%03d%s%05d", siteID, date.Format("060102"), dailySeq)
	return body + strconv.Itoa(LuhnDigit(body)), nil
}

// ValidShort reports whether code is 15 digits with a correct check digit.
func ValidShort(code string) bool {
	if len(code) != SerialShortLen || !allDigits(code) {
		return false
	}
	return LuhnDigit(code[:SerialShortLen-1]) == int(code[SerialShortLen-1]-'0')
}

// LuhnDigit computes the mod-10 check digit for a digit string.
func LuhnDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

func checkSite(site int) error {
	if site < 1 || site > 999 {
		return fmt.Errorf("site %d out of range 1..999", site)
	}
	return nil
}

func checkTypeCode(code string) error {
	if len(code) != 2 || !allDigits(code) {
		return fmt.Errorf("batch type code %q must be 2 digits", code)
	}
	return nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
