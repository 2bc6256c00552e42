package xlate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xcan-translate/xcan/internal/logging"
	"github.com/xcan-translate/xcan/internal/signal"
)

// docEntry mirrors the JSON schema from spec §6. id fields accept either a
// numeric literal or a decimal/hex string, so they are decoded via
// json.RawMessage and resolved by parseIntField.
type docEntry struct {
	SourceID           json.RawMessage `json:"source_id"`
	TargetID           json.RawMessage `json:"target_id"`
	SourceIsExtended   bool            `json:"source_is_extended"`
	TargetIsExtended   bool            `json:"target_is_extended"`
	DefaultTargetBytes []int           `json:"default_target_bytes"`
	Signals            []docSignal     `json:"signals"`
}

type docSignal struct {
	SrcStartBit  *int     `json:"src_start_bit"`
	Length       *int     `json:"length"`
	DestStartBit *int     `json:"dest_start_bit"`
	Scale        *float64 `json:"scale"`
	Offset       *float64 `json:"offset"`
	Endian       *string  `json:"endian"`
	MinValue     *float64 `json:"min_value"`
	MaxValue     *float64 `json:"max_value"`
}

type doc struct {
	Entries json.RawMessage `json:"entries"`
}

// LoadTable parses a translation table document (spec §6). A missing or
// non-array "entries" field is fatal (ErrBadTable). An individual entry
// with invalid source_id/target_id is rejected and skipped (ErrBadEntry,
// logged); an individual invalid signal is skipped and the entry is still
// built (ErrBadSignal, logged). Unknown top-level or entry-level keys are
// ignored.
func LoadTable(data []byte) (*Table, error) {
	var d doc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTable, err)
	}
	if len(d.Entries) == 0 {
		return nil, fmt.Errorf("%w: missing \"entries\" array", ErrBadTable)
	}
	var rawEntries []json.RawMessage
	if err := json.Unmarshal(d.Entries, &rawEntries); err != nil {
		return nil, fmt.Errorf("%w: \"entries\" is not an array: %v", ErrBadTable, err)
	}
	if rawEntries == nil { // "entries": null
		return nil, fmt.Errorf("%w: \"entries\" is not an array", ErrBadTable)
	}

	table := NewTable()
	for i, raw := range rawEntries {
		var de docEntry
		if err := json.Unmarshal(raw, &de); err != nil {
			logging.L().Warn("xlate_bad_entry", "index", i, "error", err)
			continue
		}
		entry, err := de.toEntry()
		if err != nil {
			logging.L().Warn("xlate_bad_entry", "index", i, "error", err)
			continue
		}
		table.Add(entry)
	}
	return table, nil
}

func (de docEntry) toEntry() (Entry, error) {
	srcID, err := parseIntField(de.SourceID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: source_id: %v", ErrBadEntry, err)
	}
	tgtID, err := parseIntField(de.TargetID)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: target_id: %v", ErrBadEntry, err)
	}
	payload := make([]byte, 0, len(de.DefaultTargetBytes))
	for _, b := range de.DefaultTargetBytes {
		if b < 0 || b > 255 {
			return Entry{}, fmt.Errorf("%w: default_target_bytes value %d out of range", ErrBadEntry, b)
		}
		payload = append(payload, byte(b))
	}
	if len(payload) > 8 {
		return Entry{}, fmt.Errorf("%w: default_target_bytes longer than 8 bytes", ErrBadEntry)
	}

	entry := Entry{
		SourceID:         uint32(srcID),
		TargetID:         uint32(tgtID),
		DefaultPayload:   payload,
		SourceIsExtended: de.SourceIsExtended,
		TargetIsExtended: de.TargetIsExtended,
	}
	for _, ds := range de.Signals {
		m, err := ds.toMapping()
		if err != nil {
			logging.L().Warn("xlate_bad_signal", "error", err)
			continue
		}
		entry.Signals = append(entry.Signals, m)
	}
	return entry, nil
}

func (ds docSignal) toMapping() (signal.Mapping, error) {
	if ds.SrcStartBit == nil || ds.Length == nil || ds.DestStartBit == nil {
		return signal.Mapping{}, fmt.Errorf("%w: missing required field(s)", ErrBadSignal)
	}
	src, ln, dst := *ds.SrcStartBit, *ds.Length, *ds.DestStartBit
	if ln < 1 || ln > 64 || src < 0 || src+ln > 64 || dst < 0 || dst+ln > 64 {
		return signal.Mapping{}, fmt.Errorf("%w: bit window out of range", ErrBadSignal)
	}
	m := signal.NewMapping(*ds.SrcStartBit, *ds.Length, *ds.DestStartBit)
	if ds.Scale != nil {
		m.Scale = *ds.Scale
	}
	if ds.Offset != nil {
		m.Offset = *ds.Offset
	}
	if ds.Endian != nil {
		m.Endian = signal.ParseEndian(strings.ToLower(*ds.Endian))
	}
	m.MinValue = ds.MinValue
	m.MaxValue = ds.MaxValue
	return m, nil
}

// parseIntField accepts a JSON number or a decimal/hex string ("0x...").
func parseIntField(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing field")
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if len(asString) > 2 && (asString[:2] == "0x" || asString[:2] == "0X") {
			return strconv.ParseInt(asString[2:], 16, 64)
		}
		return strconv.ParseInt(asString, 10, 64)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, err
	}
	return asNumber.Int64()
}
