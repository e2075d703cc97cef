package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var codecs = []Codec{JSONCodec{}, ProtoCodec{}}

func TestCodec_ConfigSurvivesTheWire(t *testing.T) {
	in := &Announcement{
		Name: "cache-1",
		Config: map[string]any{
			"address": "10.0.0.12",
			"port":    float64(6379),
			"tls":     true,
			"zones":   []any{"eu-west-1a", "eu-west-1b"},
			"limits":  map[string]any{"conns": float64(128)},
		},
	}

	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			buf, err := codec.Marshal(in)
			require.NoError(t, err)

			out, err := codec.Unmarshal(buf)
			require.NoError(t, err)
			if diff := cmp.Diff(in, out); diff != "" {
				t.Fatalf("announcement changed on the wire (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCodec_ErrorReply(t *testing.T) {
	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			buf, err := codec.Marshal(&Announcement{Error: "not configured"})
			require.NoError(t, err)

			out, err := codec.Unmarshal(buf)
			require.NoError(t, err)
			require.Empty(t, out.Name)
			require.Equal(t, "not configured", out.Error)
		})
	}
}

func TestCodec_RequiresAName(t *testing.T) {
	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			_, err := codec.Marshal(&Announcement{Config: map[string]any{"a": "b"}})
			require.ErrorIs(t, err, ErrMissingName)
		})
	}
}

func TestCodec_RejectsGarbage(t *testing.T) {
	_, err := JSONCodec{}.Unmarshal([]byte("{not json"))
	require.ErrorIs(t, err, ErrInvalidFrame)

	// a length prefix pointing past the end of the buffer.
	truncated := protowire.AppendTag(nil, fieldName, protowire.BytesType)
	truncated = protowire.AppendVarint(truncated, 42)
	_, err = ProtoCodec{}.Unmarshal(truncated)
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestProtoCodec_SkipsUnknownFields(t *testing.T) {
	buf, err := ProtoCodec{}.Marshal(&Announcement{Name: "n1"})
	require.NoError(t, err)
	buf = protowire.AppendTag(buf, 42, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 7)

	out, err := ProtoCodec{}.Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, "n1", out.Name)
}

func TestEnvelope(t *testing.T) {
	buf := MarshalEnvelope("node-a", []byte("hello"))

	source, payload, err := UnmarshalEnvelope(buf)
	require.NoError(t, err)
	require.Equal(t, "node-a", source)
	require.Equal(t, []byte("hello"), payload)

	_, _, err = UnmarshalEnvelope(buf[:len(buf)-2])
	require.ErrorIs(t, err, ErrInvalidFrame)
}
