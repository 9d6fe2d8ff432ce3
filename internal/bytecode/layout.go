package bytecode

import "fmt"

// FieldLayout describes one component field (spec §3 "Component layout").
type FieldLayout struct {
	Name   string
	TypeID byte
	Size   uint16
}

// ComponentLayout is the ordered field list for one registered component.
type ComponentLayout struct {
	ID     byte
	Name   string
	Fields []FieldLayout
	Size   uint16
}

// NewComponentLayout fills in each unset field size from its type id and
// computes the total row size; offsets are computed on demand by
// FieldOffset.
func NewComponentLayout(id byte, name string, fields []FieldLayout) ComponentLayout {
	var size uint16
	for i := range fields {
		if fields[i].Size == 0 {
			fields[i].Size = FieldSize(fields[i].TypeID)
		}
		size += fields[i].Size
	}
	return ComponentLayout{ID: id, Name: name, Fields: fields, Size: size}
}

// FieldOffset returns the byte offset of the named field within a row.
func (c ComponentLayout) FieldOffset(name string) (uint16, *FieldLayout, error) {
	var offset uint16
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return offset, &c.Fields[i], nil
		}
		offset += c.Fields[i].Size
	}
	return 0, nil, fmt.Errorf("component %s has no field %s", c.Name, name)
}

// WriteComponentHeader writes the u8 component_count + per-component
// records described in spec §6 "Bytecode file layout" item 1.
func WriteComponentHeader(w *Writer, layouts []ComponentLayout) error {
	w.Byte(byte(len(layouts)))
	for _, c := range layouts {
		w.Byte(c.ID)
		if err := w.String(c.Name); err != nil {
			return err
		}
		w.Byte(byte(len(c.Fields)))
		for _, f := range c.Fields {
			if err := w.String(f.Name); err != nil {
				return err
			}
			w.Byte(f.TypeID)
			w.U16(f.Size)
		}
	}
	return nil
}

// ReadComponentHeader parses the header written by WriteComponentHeader.
func ReadComponentHeader(r *Reader) []ComponentLayout {
	count := int(r.Byte())
	out := make([]ComponentLayout, 0, count)
	for i := 0; i < count; i++ {
		id := r.Byte()
		name := r.String()
		fieldCount := int(r.Byte())
		fields := make([]FieldLayout, fieldCount)
		for j := 0; j < fieldCount; j++ {
			fieldName := r.String()
			typeID := r.Byte()
			size := r.U16()
			fields[j] = FieldLayout{Name: fieldName, TypeID: typeID, Size: size}
		}
		out = append(out, NewComponentLayout(id, name, fields))
	}
	return out
}

// FunctionSignature is one entry of the function-signature table written
// after the component header (spec §6 "Bytecode file layout" item 2).
type FunctionSignature struct {
	Name       string
	Arity      byte
	LocalCount byte
	StartPC    uint16
}

// WriteFunctionTable writes the u8 count + per-function signature records.
func WriteFunctionTable(w *Writer, sigs []FunctionSignature) error {
	w.Byte(byte(len(sigs)))
	for _, s := range sigs {
		if err := w.String(s.Name); err != nil {
			return err
		}
		w.Byte(s.Arity)
		w.Byte(s.LocalCount)
		w.U16(s.StartPC)
	}
	return nil
}

// ReadFunctionTable parses the table written by WriteFunctionTable.
func ReadFunctionTable(r *Reader) []FunctionSignature {
	count := int(r.Byte())
	out := make([]FunctionSignature, count)
	for i := 0; i < count; i++ {
		out[i] = FunctionSignature{
			Name:       r.String(),
			Arity:      r.Byte(),
			LocalCount: r.Byte(),
			StartPC:    r.U16(),
		}
	}
	return out
}

// EncodeStringField packs a string value into the fixed 33-byte field
// layout: 1-byte length + up to 32 data bytes + zero padding
// (original_source/delta/src/vm.rs get_bytes_from_value).
func EncodeStringField(s string) [StringFieldSize]byte {
	var out [StringFieldSize]byte
	n := len(s)
	if n > 32 {
		n = 32
	}
	out[0] = byte(n)
	copy(out[1:1+n], s[:n])
	return out
}

// DecodeStringField reverses EncodeStringField.
func DecodeStringField(b []byte) string {
	n := int(b[0])
	if n > 32 {
		n = 32
	}
	return string(b[1 : 1+n])
}
