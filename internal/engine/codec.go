// Package engine exposes the reasoning boundary over gRPC.
//
// Messages travel as google.protobuf.Struct values carrying the JSON form of
// the domain types, so no generated stubs are needed on either side.
package engine

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "eduvane.engine.v1.Engine"

	respondMethod  = "/" + ServiceName + "/Respond"
	classifyMethod = "/" + ServiceName + "/Classify"

	// SharedSecretHeader carries the shared secret in request metadata.
	SharedSecretHeader = "x-eduvane-shared-secret"

	maxMessageBytes = 32 << 20
)

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

func decode(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
