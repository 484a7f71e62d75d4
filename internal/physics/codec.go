package physics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Textual forms are fixed-order JSON objects:
//
//	{"mass": m, "density": d, "radius": r, "x": x, "y": y, "z": z, "vx": vx, "vy": vy, "vz": vz}
//	{"interaction_constant": g, "time_scaling": s}
//
// Numbers are written in the shortest decimal form without exponent.

var (
	errMissing     = errors.New("missing")
	errNotPositive = errors.New("must be positive")
)

var bodySetters = map[string]func(*Body, float64){
	"mass":    func(b *Body, v float64) { b.mass = v },
	"density": func(b *Body, v float64) { b.density = v },
	"radius":  func(b *Body, v float64) { b.radius = v },
	"x":       func(b *Body, v float64) { b.Pos.X = v },
	"y":       func(b *Body, v float64) { b.Pos.Y = v },
	"z":       func(b *Body, v float64) { b.Pos.Z = v },
	"vx":      func(b *Body, v float64) { b.Vel.X = v },
	"vy":      func(b *Body, v float64) { b.Vel.Y = v },
	"vz":      func(b *Body, v float64) { b.Vel.Z = v },
}

var metaSetters = map[string]func(*Metadata, float64){
	"interaction_constant": func(m *Metadata, v float64) { m.InteractionConstant = v },
	"time_scaling":         func(m *Metadata, v float64) { m.TimeScaling = v },
}

func appendFloat(dst []byte, v float64) []byte {
	return strconv.AppendFloat(dst, v, 'f', -1, 64)
}

// AppendBody appends the textual form of b to dst.
func AppendBody(dst []byte, b Body) []byte {
	fields := [...]struct {
		key string
		v   float64
	}{
		{"mass", b.mass}, {"density", b.density}, {"radius", b.radius},
		{"x", b.Pos.X}, {"y", b.Pos.Y}, {"z", b.Pos.Z},
		{"vx", b.Vel.X}, {"vy", b.Vel.Y}, {"vz", b.Vel.Z},
	}
	dst = append(dst, '{')
	for i, f := range fields {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = append(dst, '"')
		dst = append(dst, f.key...)
		dst = append(dst, `": `...)
		dst = appendFloat(dst, f.v)
	}
	return append(dst, '}')
}

// AppendMetadata appends the textual form of m to dst.
func AppendMetadata(dst []byte, m Metadata) []byte {
	dst = append(dst, `{"interaction_constant": `...)
	dst = appendFloat(dst, m.InteractionConstant)
	dst = append(dst, `, "time_scaling": `...)
	dst = appendFloat(dst, m.TimeScaling)
	return append(dst, '}')
}

func (b Body) String() string     { return string(AppendBody(nil, b)) }
func (m Metadata) String() string { return string(AppendMetadata(nil, m)) }

// ParseBody decodes the textual form of a Body. Mass and density are
// required; the radius field is accepted but always re-derived.
func ParseBody(data []byte) (Body, error) {
	var b Body
	seen, err := parseObject("Body", data, func(key string, v float64) bool {
		set, ok := bodySetters[key]
		if ok {
			set(&b, v)
		}
		return ok
	})
	if err != nil {
		return Body{}, err
	}
	for _, key := range []string{"mass", "density"} {
		if !seen[key] {
			return Body{}, &ParseError{Type: "Body", Key: key, Err: errMissing}
		}
	}
	if !(b.mass > 0) {
		return Body{}, &ParseError{Type: "Body", Key: "mass", Err: errNotPositive}
	}
	if !(b.density > 0) {
		return Body{}, &ParseError{Type: "Body", Key: "density", Err: errNotPositive}
	}
	b.radius = DeriveRadius(b.mass, b.density)
	return b, nil
}

// ParseMetadata decodes the textual form of a SimMetaData.
func ParseMetadata(data []byte) (Metadata, error) {
	var m Metadata
	seen, err := parseObject("SimMetaData", data, func(key string, v float64) bool {
		set, ok := metaSetters[key]
		if ok {
			set(&m, v)
		}
		return ok
	})
	if err != nil {
		return Metadata{}, err
	}
	for key := range metaSetters {
		if !seen[key] {
			return Metadata{}, &ParseError{Type: "SimMetaData", Key: key, Err: errMissing}
		}
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, &ParseError{Type: "SimMetaData", Err: err}
	}
	return m, nil
}

// parseObject walks a flat JSON object of numbers. set reports whether the
// key belongs to the type; unknown keys abort the parse.
func parseObject(typ string, data []byte, set func(key string, v float64) bool) (map[string]bool, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, &ParseError{Type: typ, Err: err}
	}
	seen := make(map[string]bool, len(bodySetters))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ParseError{Type: typ, Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &ParseError{Type: typ, Err: fmt.Errorf("unexpected token %v", tok)}
		}
		tok, err = dec.Token()
		if err != nil {
			return nil, &ParseError{Type: typ, Key: key, Err: err}
		}
		num, ok := tok.(json.Number)
		if !ok {
			if !set(key, 0) {
				return nil, &ParseError{Type: typ, Key: key}
			}
			return nil, &ParseError{Type: typ, Key: key, Err: fmt.Errorf("expected number, got %v", tok)}
		}
		v, err := strconv.ParseFloat(string(num), 64)
		if err != nil {
			return nil, &ParseError{Type: typ, Key: key, Err: err}
		}
		if !set(key, v) {
			return nil, &ParseError{Type: typ, Key: key}
		}
		seen[key] = true
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, &ParseError{Type: typ, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Type: typ, Err: errors.New("trailing data after object")}
	}
	return seen, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected '%c', got %v", want, tok)
	}
	return nil
}
