package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// TeamRecord is one entry of the teams property: {1:id, 2:name, 3:member*}.
type TeamRecord struct {
	ID      int
	Name    string
	Members []string
}

// ScoreRecord is one entry of the scores property: {1:id, 2:score}.
type ScoreRecord struct {
	ID    int
	Score int
}

// EncodeTeams encodes the full team list as repeated field-1 records.
func EncodeTeams(teams []TeamRecord) []byte {
	var b []byte
	for _, t := range teams {
		var rec []byte
		rec = appendUint(rec, 1, uint64(t.ID))
		rec = appendString(rec, 2, t.Name)
		for _, m := range t.Members {
			rec = appendString(rec, 3, m)
		}
		b = appendRecord(b, 1, rec)
	}
	return b
}

// DecodeTeams returns every well-formed team record. The error joins one entry per skipped record.
func DecodeTeams(b []byte) ([]TeamRecord, error) {
	return repeated(b, decodeTeam)
}

func decodeTeam(b []byte) (TeamRecord, error) {
	var (
		t     TeamRecord
		hasID bool
	)
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.ID, err = unsigned(f)
			hasID = err == nil
		case 2:
			t.Name, err = str(f)
		case 3:
			var m string
			if m, err = str(f); err == nil {
				t.Members = append(t.Members, m)
			}
		}
		return err
	})
	if err != nil {
		return TeamRecord{}, err
	}
	if !hasID {
		return TeamRecord{}, fmt.Errorf("%w: team record without id", ErrMalformed)
	}
	return t, nil
}

// EncodeScores encodes per-team scores as repeated field-1 records.
func EncodeScores(scores []ScoreRecord) []byte {
	var b []byte
	for _, s := range scores {
		var rec []byte
		rec = appendUint(rec, 1, uint64(s.ID))
		rec = appendSint(rec, 2, int64(s.Score))
		b = appendRecord(b, 1, rec)
	}
	return b
}

// DecodeScores returns every well-formed score record.
func DecodeScores(b []byte) ([]ScoreRecord, error) {
	return repeated(b, decodeScore)
}

func decodeScore(b []byte) (ScoreRecord, error) {
	var (
		s     ScoreRecord
		hasID bool
	)
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			s.ID, err = unsigned(f)
			hasID = err == nil
		case 2:
			s.Score, err = sint(f)
		}
		return err
	})
	if err != nil {
		return ScoreRecord{}, err
	}
	if !hasID {
		return ScoreRecord{}, fmt.Errorf("%w: score record without id", ErrMalformed)
	}
	return s, nil
}

func EncodeBool(v bool) []byte {
	return appendBool(nil, 1, v)
}

// DecodeBool reads a single-field bool. An empty value is false.
func DecodeBool(b []byte) (bool, error) {
	var v bool
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		if err := f.want(protowire.VarintType); err != nil {
			return err
		}
		v = protowire.DecodeBool(f.varint)
		return nil
	})
	return v, err
}

func EncodeInt(v int) []byte {
	return appendSint(nil, 1, int64(v))
}

// DecodeInt reads a single-field signed integer. An empty value is 0.
func DecodeInt(b []byte) (int, error) {
	var v int
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var err error
		v, err = sint(f)
		return err
	})
	return v, err
}

func EncodeString(v string) []byte {
	return appendString(nil, 1, v)
}

// DecodeString reads a single-field string. An empty value is "".
func DecodeString(b []byte) (string, error) {
	var v string
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var err error
		v, err = str(f)
		return err
	})
	return v, err
}

// EncodeOptionalInt encodes nil as an empty value.
func EncodeOptionalInt(v *int) []byte {
	if v == nil {
		return []byte{}
	}
	return EncodeInt(*v)
}

// DecodeOptionalInt returns nil for an empty value.
func DecodeOptionalInt(b []byte) (*int, error) {
	var v *int
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		n, err := sint(f)
		if err != nil {
			return err
		}
		v = &n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Property is one replicated key/value pair.
type Property struct {
	Key   string
	Value []byte
}

// EncodeProperties encodes a batch as repeated {1:key, 2:value} records.
func EncodeProperties(props []Property) []byte {
	var b []byte
	for _, p := range props {
		var rec []byte
		rec = appendString(rec, 1, p.Key)
		rec = protowire.AppendTag(rec, 2, protowire.BytesType)
		rec = protowire.AppendBytes(rec, p.Value)
		b = appendRecord(b, 1, rec)
	}
	return b
}

// DecodeProperties returns every well-formed property of a batch.
func DecodeProperties(b []byte) ([]Property, error) {
	return repeated(b, decodeProperty)
}

func decodeProperty(b []byte) (Property, error) {
	var p Property
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			p.Key, err = str(f)
		case 2:
			if err = f.want(protowire.BytesType); err == nil {
				p.Value = append([]byte{}, f.bytes...)
			}
		}
		return err
	})
	if err != nil {
		return Property{}, err
	}
	if p.Key == "" {
		return Property{}, fmt.Errorf("%w: property without key", ErrMalformed)
	}
	return p, nil
}
