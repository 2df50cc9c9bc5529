package l1capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/banshee-data/scavenger/internal/scavenger"
)

// ErrMalformedBatch is wrapped by every FormatError.
var ErrMalformedBatch = errors.New("malformed capture batch")

// FormatError describes why a capture record could not be decoded.
// A batch with any FormatError is rejected as a whole.
type FormatError struct {
	Index  int    // position of the record in the batch, -1 for the batch itself
	Field  string // offending field name, empty for the batch itself
	Reason string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("capture batch: %s", e.Reason)
	}
	return fmt.Sprintf("capture record %d: field %q: %s", e.Index, e.Field, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrMalformedBatch }

// wireRecord mirrors the sniffer JSON shape. Every field is raw so a
// missing key can be told apart from a zero value.
type wireRecord struct {
	AP    json.RawMessage `json:"ap"`
	Epoch json.RawMessage `json:"epoch"`
	RSSI  json.RawMessage `json:"rssi"`
	IE    json.RawMessage `json:"ie"`
	SSID  json.RawMessage `json:"ssid"`
}

// DecodeBatch decodes one capture batch: a JSON array of records with
// fields ap, epoch, rssi, ie and ssid.
func DecodeBatch(data []byte) ([]scavenger.DetectionRecord, error) {
	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &FormatError{Index: -1, Reason: err.Error()}
	}

	records := make([]scavenger.DetectionRecord, 0, len(wire))
	for i, w := range wire {
		rec, err := decodeRecord(i, w)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadBatch decodes a batch from r.
func ReadBatch(r io.Reader) ([]scavenger.DetectionRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read capture batch: %w", err)
	}
	return DecodeBatch(data)
}

func decodeRecord(i int, w wireRecord) (scavenger.DetectionRecord, error) {
	var rec scavenger.DetectionRecord

	ap, err := decodeString(w.AP)
	if err != nil {
		return rec, &FormatError{Index: i, Field: "ap", Reason: err.Error()}
	}
	if ap == "" {
		return rec, &FormatError{Index: i, Field: "ap", Reason: "empty sniffer id"}
	}
	rec.SnifferID = ap

	if rec.EpochNs, err = decodeInteger(w.Epoch); err != nil {
		return rec, &FormatError{Index: i, Field: "epoch", Reason: err.Error()}
	}

	rssi, err := decodeInteger(w.RSSI)
	if err != nil {
		return rec, &FormatError{Index: i, Field: "rssi", Reason: err.Error()}
	}
	if rssi < math.MinInt32 || rssi > math.MaxInt32 {
		return rec, &FormatError{Index: i, Field: "rssi", Reason: "out of range"}
	}
	rec.RSSI = int(rssi)

	if rec.InformationElement, err = canonicalIE(w.IE); err != nil {
		return rec, &FormatError{Index: i, Field: "ie", Reason: err.Error()}
	}

	if rec.ClaimedID, err = decodeString(w.SSID); err != nil {
		return rec, &FormatError{Index: i, Field: "ssid", Reason: err.Error()}
	}
	return rec, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", errors.New("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("not a string")
	}
	return s, nil
}

// decodeInteger accepts an integer, an integer-valued float or a string
// holding either.
func decodeInteger(raw json.RawMessage) (int64, error) {
	if isAbsent(raw) {
		return 0, errors.New("missing")
	}
	text := string(bytes.TrimSpace(raw))
	if len(text) > 1 && text[0] == '"' {
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return 0, errors.New("unparsable")
		}
		text = unquoted
	}
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("unparsable")
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not integer-valued: %s", text)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.New("out of range")
	}
	return int64(f), nil
}

// canonicalIE turns the opaque ie value into a stable string. Strings are
// taken verbatim; any other JSON value is re-encoded with sorted keys so
// equal structures always hash the same.
func canonicalIE(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", errors.New("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", errors.New("unparsable")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("re-encode: %w", err)
	}
	return string(out), nil
}

// EncodeBatch writes records in the capture batch format.
func EncodeBatch(w io.Writer, records []scavenger.DetectionRecord) error {
	if records == nil {
		records = []scavenger.DetectionRecord{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode capture batch: %w", err)
	}
	return nil
}
