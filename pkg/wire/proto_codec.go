package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldName   protowire.Number = 1
	fieldConfig protowire.Number = 2
	fieldError  protowire.Number = 3
)

// ProtoCodec encodes announcements with the protobuf wire format.
//
// The message is equivalent to:
//
//	message Announcement {
//	  string name = 1;
//	  google.protobuf.Struct config = 2;
//	  string error = 3;
//	}
//
// Config values are restricted to what `structpb.NewValue` accepts.
type ProtoCodec struct{}

var _ Codec = ProtoCodec{}

func (ProtoCodec) Name() string {
	return "proto"
}

func (ProtoCodec) Marshal(a *Announcement) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	var buf []byte
	if a.Name != "" {
		buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
		buf = protowire.AppendString(buf, a.Name)
	}

	if a.Config != nil {
		st, err := structpb.NewStruct(a.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: config: %w", ErrInvalidFrame, err)
		}
		raw, err := proto.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("%w: config: %w", ErrInvalidFrame, err)
		}
		buf = protowire.AppendTag(buf, fieldConfig, protowire.BytesType)
		buf = protowire.AppendBytes(buf, raw)
	}

	if a.Error != "" {
		buf = protowire.AppendTag(buf, fieldError, protowire.BytesType)
		buf = protowire.AppendString(buf, a.Error)
	}

	return buf, nil
}

func (ProtoCodec) Unmarshal(buf []byte) (*Announcement, error) {
	a := &Announcement{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldName && typ == protowire.BytesType:
			a.Name, n = protowire.ConsumeString(buf)
		case num == fieldError && typ == protowire.BytesType:
			a.Error, n = protowire.ConsumeString(buf)
		case num == fieldConfig && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(buf)
			if n >= 0 {
				st := &structpb.Struct{}
				if err := proto.Unmarshal(raw, st); err != nil {
					return nil, fmt.Errorf("%w: config: %w", ErrInvalidFrame, err)
				}
				a.Config = st.AsMap()
			}
		default:
			// unknown fields are skipped for forward compatibility.
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}

		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		buf = buf[n:]
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}
