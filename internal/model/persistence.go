package model

import (
	"fmt"
	"strings"
)

// MaxDrawingLabelLen bounds user-supplied drawing labels.
const MaxDrawingLabelLen = 120

var supportedDrawingTypes = map[string]struct{}{
	"trendLine":      {},
	"horizontalLine": {},
	"ruler":          {},
	"fibRetracement": {},
	"fibExtension":   {},
}

// PreferencesSnapshot is the persisted chart preferences singleton.
type PreferencesSnapshot struct {
	MarketKind   MarketKind `json:"marketKind"`
	Symbol       string     `json:"symbol"`
	Timeframe    Timeframe  `json:"timeframe"`
	MagnetStrong bool       `json:"magnetStrong"`
	UpdatedAtMs  int64      `json:"updatedAtMs"`
}

// SavePreferencesArgs replaces the preferences singleton.
type SavePreferencesArgs struct {
	MarketKind   MarketKind `json:"marketKind"`
	Symbol       string     `json:"symbol"`
	Timeframe    Timeframe  `json:"timeframe"`
	MagnetStrong bool       `json:"magnetStrong"`
}

// Normalize validates and canonicalizes the arguments.
func (a SavePreferencesArgs) Normalize() (SavePreferencesArgs, error) {
	if _, err := ParseMarketKind(string(a.MarketKind)); err != nil {
		return SavePreferencesArgs{}, err
	}
	if _, err := ParseTimeframe(string(a.Timeframe)); err != nil {
		return SavePreferencesArgs{}, err
	}
	symbol, err := NormalizeSymbol(a.Symbol)
	if err != nil {
		return SavePreferencesArgs{}, err
	}
	a.Symbol = symbol
	return a, nil
}

// DrawingScope addresses the drawings belonging to one chart.
type DrawingScope struct {
	MarketKind MarketKind `json:"marketKind"`
	Symbol     string     `json:"symbol"`
	Timeframe  Timeframe  `json:"timeframe"`
}

// Normalize validates and canonicalizes the scope.
func (s DrawingScope) Normalize() (DrawingScope, error) {
	if _, err := ParseMarketKind(string(s.MarketKind)); err != nil {
		return DrawingScope{}, err
	}
	if _, err := ParseTimeframe(string(s.Timeframe)); err != nil {
		return DrawingScope{}, err
	}
	symbol, err := NormalizeSymbol(s.Symbol)
	if err != nil {
		return DrawingScope{}, err
	}
	s.Symbol = symbol
	return s, nil
}

// Drawing is one persisted chart drawing.
type Drawing struct {
	ID          string     `json:"id" db:"id"`
	MarketKind  MarketKind `json:"marketKind" db:"market_kind"`
	Symbol      string     `json:"symbol" db:"symbol"`
	Timeframe   Timeframe  `json:"timeframe" db:"timeframe"`
	DrawingType string     `json:"drawingType" db:"drawing_type"`
	Color       string     `json:"color" db:"color"`
	Label       *string    `json:"label,omitempty" db:"label"`
	PayloadJSON string     `json:"payloadJson" db:"payload_json"`
	CreatedAtMs int64      `json:"createdAtMs" db:"created_at_ms"`
	UpdatedAtMs int64      `json:"updatedAtMs" db:"updated_at_ms"`
}

// DrawingUpsertArgs creates or replaces a drawing.
type DrawingUpsertArgs struct {
	ID          string     `json:"id"`
	MarketKind  MarketKind `json:"marketKind"`
	Symbol      string     `json:"symbol"`
	Timeframe   Timeframe  `json:"timeframe"`
	DrawingType string     `json:"drawingType"`
	Color       string     `json:"color"`
	Label       *string    `json:"label,omitempty"`
	PayloadJSON string     `json:"payloadJson"`
	CreatedAtMs *int64     `json:"createdAtMs,omitempty"`
}

// Normalize trims and validates every field: the id and payload must be
// non-empty, the type must be supported, the color canonicalizes to
// upper-case #RRGGBB and the label to a trimmed non-empty string or nil.
func (a DrawingUpsertArgs) Normalize() (DrawingUpsertArgs, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return DrawingUpsertArgs{}, fmt.Errorf("%w: drawing id must be non-empty", ErrInvalidArgs)
	}
	if _, err := ParseMarketKind(string(a.MarketKind)); err != nil {
		return DrawingUpsertArgs{}, err
	}
	if _, err := ParseTimeframe(string(a.Timeframe)); err != nil {
		return DrawingUpsertArgs{}, err
	}
	symbol, err := NormalizeSymbol(a.Symbol)
	if err != nil {
		return DrawingUpsertArgs{}, err
	}
	a.Symbol = symbol

	a.DrawingType = strings.TrimSpace(a.DrawingType)
	if _, ok := supportedDrawingTypes[a.DrawingType]; !ok {
		return DrawingUpsertArgs{}, fmt.Errorf("%w: unsupported drawing type %q", ErrInvalidArgs, a.DrawingType)
	}

	color, err := normalizeColor(a.Color)
	if err != nil {
		return DrawingUpsertArgs{}, err
	}
	a.Color = color

	a.Label, err = normalizeLabel(a.Label)
	if err != nil {
		return DrawingUpsertArgs{}, err
	}

	a.PayloadJSON = strings.TrimSpace(a.PayloadJSON)
	if a.PayloadJSON == "" {
		return DrawingUpsertArgs{}, fmt.Errorf("%w: payloadJson must be non-empty", ErrInvalidArgs)
	}

	return a, nil
}

// DrawingDeleteArgs removes one drawing within its scope.
type DrawingDeleteArgs struct {
	ID         string     `json:"id"`
	MarketKind MarketKind `json:"marketKind"`
	Symbol     string     `json:"symbol"`
	Timeframe  Timeframe  `json:"timeframe"`
}

// Normalize validates and canonicalizes the arguments.
func (a DrawingDeleteArgs) Normalize() (DrawingDeleteArgs, error) {
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return DrawingDeleteArgs{}, fmt.Errorf("%w: drawing id must be non-empty", ErrInvalidArgs)
	}
	scope, err := DrawingScope{MarketKind: a.MarketKind, Symbol: a.Symbol, Timeframe: a.Timeframe}.Normalize()
	if err != nil {
		return DrawingDeleteArgs{}, err
	}
	a.MarketKind = scope.MarketKind
	a.Symbol = scope.Symbol
	a.Timeframe = scope.Timeframe
	return a, nil
}

// DrawingDeleteResult reports whether a row was removed.
type DrawingDeleteResult struct {
	Deleted bool `json:"deleted"`
}

func normalizeColor(color string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(color))
	if len(normalized) != 7 || normalized[0] != '#' {
		return "", fmt.Errorf("%w: drawing color must be #RRGGBB", ErrInvalidArgs)
	}
	for _, ch := range normalized[1:] {
		isDigit := ch >= '0' && ch <= '9'
		isHexUpper := ch >= 'A' && ch <= 'F'
		if !isDigit && !isHexUpper {
			return "", fmt.Errorf("%w: drawing color must be #RRGGBB", ErrInvalidArgs)
		}
	}
	return normalized, nil
}

func normalizeLabel(label *string) (*string, error) {
	if label == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*label)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > MaxDrawingLabelLen {
		return nil, fmt.Errorf("%w: drawing label exceeds max length (%d)", ErrInvalidArgs, MaxDrawingLabelLen)
	}
	return &trimmed, nil
}
