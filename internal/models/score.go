package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

const AbsentLabel = "Absent"

type scoreKind uint8

const (
	scoreEmpty scoreKind = iota
	scoreNumeric
	scoreAbsent
)

// Score is one mark component: not entered yet, a number, or Absent.
// The zero value is an empty score.
type Score struct {
	kind  scoreKind
	value float64
}

func Numeric(v float64) Score { return Score{kind: scoreNumeric, value: v} }

func Absent() Score { return Score{kind: scoreAbsent} }

func Empty() Score { return Score{} }

func (s Score) IsEmpty() bool   { return s.kind == scoreEmpty }
func (s Score) IsAbsent() bool  { return s.kind == scoreAbsent }
func (s Score) IsNumeric() bool { return s.kind == scoreNumeric }

// Value is the arithmetic value of the score. Absent and empty count as 0.
func (s Score) Value() float64 {
	if s.kind != scoreNumeric {
		return 0
	}
	return s.value
}

func (s Score) String() string {
	switch s.kind {
	case scoreAbsent:
		return AbsentLabel
	case scoreNumeric:
		return strconv.FormatFloat(s.value, 'f', -1, 64)
	default:
		return ""
	}
}

// ParseScore reads the text form used by imports, the bot and the API.
// Blank is empty; "Absent", "AB" and "A" (any case) are absent.
func ParseScore(raw string) (Score, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Empty(), nil
	}
	switch strings.ToLower(text) {
	case "absent", "ab", "a":
		return Absent(), nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Empty(), fmt.Errorf("invalid score %q: expected a number or %q", raw, AbsentLabel)
	}
	return Numeric(v), nil
}

func (s Score) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case scoreAbsent:
		return json.Marshal(AbsentLabel)
	case scoreNumeric:
		return json.Marshal(s.value)
	default:
		return []byte("null"), nil
	}
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*s = Empty()
	case float64:
		*s = Numeric(v)
	case string:
		parsed, err := ParseScore(v)
		if err != nil {
			return err
		}
		*s = parsed
	default:
		return fmt.Errorf("invalid score %s", string(data))
	}
	return nil
}

func (s Score) MarshalBSONValue() (bsontype.Type, []byte, error) {
	switch s.kind {
	case scoreAbsent:
		return bson.MarshalValue(AbsentLabel)
	case scoreNumeric:
		return bson.MarshalValue(s.value)
	default:
		return bsontype.Null, nil, nil
	}
}

func (s *Score) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*s = Empty()
	case bsontype.Double:
		*s = Numeric(rv.Double())
	case bsontype.Int32:
		*s = Numeric(float64(rv.Int32()))
	case bsontype.Int64:
		*s = Numeric(float64(rv.Int64()))
	case bsontype.String:
		parsed, err := ParseScore(rv.StringValue())
		if err != nil {
			return err
		}
		*s = parsed
	default:
		return fmt.Errorf("invalid bson type %s for score", t)
	}
	return nil
}
