// Package contract handles the encoding conventions shared with callers:
// the bytes32 city identifier, milli-degree temperature thresholds and the
// per-threshold ticker symbols used to address a single sub-market.
package contract

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// CityIDLen is the fixed width of an encoded city identifier.
const CityIDLen = 32

// tickerRegex matches: WX-{drawID}-GT{thresholdMilliC}
// Example: WX-12-GT20500 (draw 12, "temperature > 20.5 °C")
var tickerRegex = regexp.MustCompile(`^WX-([0-9]+)-GT(-?[0-9]+)$`)

var (
	ErrInvalidCityID      = errors.New("contract: invalid city id")
	ErrInvalidTicker      = errors.New("contract: invalid ticker format")
	ErrInvalidTemperature = errors.New("contract: invalid temperature")
)

var (
	milli    = decimal.NewFromInt(1000)
	maxMilli = decimal.NewFromInt(math.MaxInt64)
	minMilli = decimal.NewFromInt(math.MinInt64)
)

// CityID is a UTF-8 city name right-padded with zero bytes to 32 bytes.
type CityID [CityIDLen]byte

// NewCityID encodes a city name. The name must be non-empty valid UTF-8,
// at most 32 bytes, and contain no NUL bytes.
func NewCityID(name string) (CityID, error) {
	var id CityID
	if name == "" {
		return id, fmt.Errorf("%w: empty name", ErrInvalidCityID)
	}
	if len(name) > CityIDLen {
		return id, fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidCityID, name, CityIDLen)
	}
	if !utf8.ValidString(name) || strings.IndexByte(name, 0) >= 0 {
		return id, fmt.Errorf("%w: %q is not a valid UTF-8 name", ErrInvalidCityID, name)
	}
	copy(id[:], name)
	return id, nil
}

// CityIDFromHex decodes a 0x-prefixed 64-hex-digit bytes32 value.
func CityIDFromHex(s string) (CityID, error) {
	var id CityID
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != CityIDLen {
		return id, fmt.Errorf("%w: %q is not a bytes32 hex value", ErrInvalidCityID, s)
	}
	copy(id[:], raw)
	if id.IsZero() || !utf8.Valid(bytes.TrimRight(id[:], "\x00")) {
		return id, fmt.Errorf("%w: %q does not hold a UTF-8 name", ErrInvalidCityID, s)
	}
	return id, nil
}

// ParseCityID accepts either a plain city name or its bytes32 hex form.
func ParseCityID(s string) (CityID, error) {
	if len(s) == 2+2*CityIDLen && strings.HasPrefix(s, "0x") {
		return CityIDFromHex(s)
	}
	return NewCityID(s)
}

// Name returns the city name with the zero padding removed.
func (c CityID) Name() string {
	return string(bytes.TrimRight(c[:], "\x00"))
}

// Hex returns the 0x-prefixed bytes32 encoding.
func (c CityID) Hex() string {
	return "0x" + hex.EncodeToString(c[:])
}

func (c CityID) IsZero() bool {
	return c == CityID{}
}

func (c CityID) String() string {
	return c.Name()
}

func (c CityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Name())
}

func (c *CityID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCityID, err)
	}
	if s == "" {
		*c = CityID{}
		return nil
	}
	id, err := ParseCityID(s)
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// ParseCelsius converts a decimal degree string ("20.5", "-3") to signed
// milli-degrees (20500, -3000). Precision finer than 0.001 °C is rejected.
func ParseCelsius(s string) (int64, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTemperature, s)
	}
	m := v.Mul(milli)
	if !m.IsInteger() {
		return 0, fmt.Errorf("%w: %q is finer than 0.001 °C", ErrInvalidTemperature, s)
	}
	if m.GreaterThan(maxMilli) || m.LessThan(minMilli) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidTemperature, s)
	}
	return m.IntPart(), nil
}

// FormatCelsius renders milli-degrees as a decimal degree string.
func FormatCelsius(milliC int64) string {
	return decimal.New(milliC, -3).String()
}

// Ticker is a parsed per-threshold sub-market symbol.
type Ticker struct {
	Symbol    string `json:"symbol"`
	DrawID    uint64 `json:"draw_id"`
	Threshold int64  `json:"threshold"`
}

// FormatTicker builds the symbol for one threshold of one draw.
func FormatTicker(drawID uint64, threshold int64) string {
	return "WX-" + strconv.FormatUint(drawID, 10) + "-GT" + strconv.FormatInt(threshold, 10)
}

// ParseTicker parses and validates a ticker symbol.
// Format: WX-{drawID}-GT{thresholdMilliC}
func ParseTicker(symbol string) (*Ticker, error) {
	matches := tickerRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected WX-{drawID}-GT{milliC})", ErrInvalidTicker, symbol)
	}

	drawID, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil || drawID == 0 {
		return nil, fmt.Errorf("%w: invalid draw id %s", ErrInvalidTicker, matches[1])
	}
	threshold, err := strconv.ParseInt(matches[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid threshold %s", ErrInvalidTicker, matches[2])
	}

	return &Ticker{
		Symbol:    symbol,
		DrawID:    drawID,
		Threshold: threshold,
	}, nil
}
