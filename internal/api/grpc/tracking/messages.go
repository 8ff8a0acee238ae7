package tracking

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct encodes a wire value as a Struct through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert message: %w", err)
	}

	return out, nil
}

// FromStruct decodes a Struct into a wire value.
func FromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = new(structpb.Struct)
	}

	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("convert message: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	return nil
}
