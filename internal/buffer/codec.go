package buffer

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/twmb/murmur3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aerospike/aerospike-client-go-teachable/errs"
	"github.com/aerospike/aerospike-client-go-teachable/types"
)

// Permissive controls how Decode treats an unrecognized particle type:
// when true, unknown bytes decode as a Blob; when false, decoding is fatal
// (§4.1 Failure).
type Permissive bool

const (
	Strict       Permissive = false
	BePermissive Permissive = true
)

// EncodeValue appends the wire form of v to a: a 1-byte particle type tag,
// a 4-byte big-endian length prefix, then the payload. Scalars are encoded
// directly; List/Map go through the packed (MessagePack-derived) format.
func EncodeValue(a *Arena, v types.Value) error {
	a.WriteByte(byte(v.ParticleType()))
	lenSlot := a.Reserve(4)
	start := a.Offset()

	if err := encodePayload(a, v); err != nil {
		return err
	}

	a.BackpatchUint32(lenSlot, uint32(a.LenSince(start)))

	return nil
}

func encodePayload(a *Arena, v types.Value) error {
	switch val := v.(type) {
	case types.NilValue:
		return nil
	case types.BoolValue:
		if val {
			a.WriteByte(1)
		} else {
			a.WriteByte(0)
		}

		return nil
	case types.IntValue:
		a.WriteUint64(uint64(val))
		return nil
	case types.UintValue:
		if uint64(val) > math.MaxInt64 {
			return fmt.Errorf("%w: uint value %d exceeds the server's integer range", errs.ErrPolicy, uint64(val))
		}

		a.WriteUint64(uint64(val))
		return nil
	case types.FloatValue:
		a.WriteUint64(math.Float64bits(float64(val)))
		return nil
	case types.StringValue:
		a.WriteBytes([]byte(val))
		return nil
	case types.BlobValue:
		a.WriteBytes(val)
		return nil
	case types.GeoJSONValue:
		a.WriteBytes([]byte(val))
		return nil
	case types.HLLValue:
		a.WriteBytes(val)
		return nil
	case types.ListValue:
		packed, err := packCollection(toNative(val))
		if err != nil {
			return err
		}

		a.WriteBytes(packed)

		return nil
	case types.MapValue:
		native, err := mapValueToNative(val)
		if err != nil {
			return err
		}

		packed, err := packCollection(native)
		if err != nil {
			return err
		}

		a.WriteBytes(packed)

		return nil
	default:
		return fmt.Errorf("%w: unsupported value type %T", errs.ErrPolicy, v)
	}
}

// DecodeValue reads one [type][len][payload] entry from b and returns the
// decoded Value plus the number of bytes consumed.
func DecodeValue(b []byte, permissive Permissive) (types.Value, int, error) {
	if len(b) < 5 {
		return nil, 0, errs.Wrap(errs.KindProtocol, nil, "truncated value header")
	}

	typ := types.ParticleType(b[0])
	length := binary.BigEndian.Uint32(b[1:5])

	if len(b) < int(5+length) {
		return nil, 0, errs.Wrap(errs.KindProtocol, nil, "truncated value payload")
	}

	payload := b[5 : 5+length]
	consumed := int(5 + length)

	v, err := decodePayload(typ, payload, permissive)
	if err != nil {
		return nil, 0, err
	}

	return v, consumed, nil
}

func decodePayload(typ types.ParticleType, payload []byte, permissive Permissive) (types.Value, error) {
	switch typ {
	case types.ParticleNil:
		return types.NilValue{}, nil
	case types.ParticleBool:
		if len(payload) != 1 {
			return nil, errs.Wrap(errs.KindProtocol, nil, "malformed bool value")
		}

		return types.BoolValue(payload[0] != 0), nil
	case types.ParticleInt:
		if len(payload) != 8 {
			return nil, errs.Wrap(errs.KindProtocol, nil, "malformed int value")
		}

		return types.IntValue(int64(binary.BigEndian.Uint64(payload))), nil
	case types.ParticleUint:
		if len(payload) != 8 {
			return nil, errs.Wrap(errs.KindProtocol, nil, "malformed uint value")
		}

		return types.UintValue(binary.BigEndian.Uint64(payload)), nil
	case types.ParticleFloat:
		if len(payload) != 8 {
			return nil, errs.Wrap(errs.KindProtocol, nil, "malformed float value")
		}

		return types.FloatValue(math.Float64frombits(binary.BigEndian.Uint64(payload))), nil
	case types.ParticleString:
		return types.StringValue(payload), nil
	case types.ParticleBlob:
		return types.BlobValue(append([]byte(nil), payload...)), nil
	case types.ParticleGeoJSON:
		return types.GeoJSONValue(payload), nil
	case types.ParticleHLL:
		return types.HLLValue(append([]byte(nil), payload...)), nil
	case types.ParticleList:
		native, err := unpackCollection(payload)
		if err != nil {
			return nil, err
		}

		return fromNativeList(native)
	case types.ParticleMap:
		native, err := unpackCollection(payload)
		if err != nil {
			return nil, err
		}

		return fromNativeMap(native)
	default:
		if permissive {
			return types.BlobValue(append([]byte(nil), payload...)), nil
		}

		return nil, fmt.Errorf("%w: unknown particle type %d", errs.ErrPolicy, typ)
	}
}

// WritePayload writes just v's payload bytes (no type tag, no length
// prefix) to a. Used by callers that frame the type and length themselves,
// such as the per-operation encoding in package ops, which already carries
// a particle-type byte and derives length from its own op-size field.
func WritePayload(a *Arena, v types.Value) error {
	return encodePayload(a, v)
}

// ReadPayload decodes payload as typ without the [type][len] header that
// DecodeValue expects, mirroring WritePayload.
func ReadPayload(typ types.ParticleType, payload []byte, permissive Permissive) (types.Value, error) {
	return decodePayload(typ, payload, permissive)
}

func packCollection(v interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.KindProtocol, err, "failed to pack collection")
	}

	return b, nil
}

func unpackCollection(b []byte) (interface{}, error) {
	var v interface{}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, err, "malformed packed collection")
	}

	return v, nil
}

// toNative converts a ListValue into plain Go values msgpack can marshal.
func toNative(list types.ListValue) []interface{} {
	out := make([]interface{}, len(list))
	for i, item := range list {
		out[i] = valueToNative(item)
	}

	return out
}

func valueToNative(v types.Value) interface{} {
	switch val := v.(type) {
	case types.NilValue:
		return nil
	case types.BoolValue:
		return bool(val)
	case types.IntValue:
		return int64(val)
	case types.UintValue:
		return uint64(val)
	case types.FloatValue:
		return float64(val)
	case types.StringValue:
		return string(val)
	case types.BlobValue:
		return []byte(val)
	case types.ListValue:
		return toNative(val)
	case types.MapValue:
		native, _ := mapValueToNative(val)
		return native
	case types.GeoJSONValue:
		return geoJSONExt{Geo: string(val)}
	case types.HLLValue:
		return hllExt{HLL: []byte(val)}
	default:
		return nil
	}
}

// geoJSONExt/hllExt are extension wrappers preserving GeoJSON/HLL values
// nested inside a List or Map; without a tagged wrapper they would
// unmarshal back as plain string/blob, losing their particle type on a
// round trip (§8 round-trip invariant).
type geoJSONExt struct {
	Geo string `msgpack:"geojson"`
}

type hllExt struct {
	HLL []byte `msgpack:"hll"`
}

// mapValueExt is the Aerospike-specific extension wrapper preserving the
// caller's ordering flag (§4.1 "extension tags for Map ordering").
type mapValueExt struct {
	Ordered bool                  `msgpack:"ordered"`
	Entries []mapValueEntryNative `msgpack:"entries"`
}

type mapValueEntryNative struct {
	K interface{} `msgpack:"k"`
	V interface{} `msgpack:"v"`
}

func mapValueToNative(m types.MapValue) (interface{}, error) {
	entries := make([]mapValueEntryNative, len(m.Entries))
	for i, e := range m.Entries {
		entries[i] = mapValueEntryNative{K: valueToNative(e.Key), V: valueToNative(e.Value)}
	}

	if !m.Ordered {
		sortByKeyHash(entries)
	}

	return mapValueExt{Ordered: m.Ordered, Entries: entries}, nil
}

// sortByKeyHash gives unordered map entries a deterministic wire order.
// Entry keys aren't always directly comparable (blobs, nested lists), so
// rather than special-casing every native key type this hashes each key's
// msgpack encoding with murmur3 and sorts on the digest.
func sortByKeyHash(entries []mapValueEntryNative) {
	hashed := make([]struct {
		entry mapValueEntryNative
		hash  uint64
	}, len(entries))

	for i, e := range entries {
		b, err := msgpack.Marshal(e.K)

		var h uint64
		if err == nil {
			h = murmur3.Sum64(b)
		}

		hashed[i] = struct {
			entry mapValueEntryNative
			hash  uint64
		}{entry: e, hash: h}
	}

	sort.SliceStable(hashed, func(i, j int) bool {
		return hashed[i].hash < hashed[j].hash
	})

	for i, h := range hashed {
		entries[i] = h.entry
	}
}

func fromNativeList(native interface{}) (types.ListValue, error) {
	items, ok := native.([]interface{})
	if !ok {
		return nil, errs.Wrap(errs.KindProtocol, nil, "malformed packed list")
	}

	out := make(types.ListValue, len(items))

	for i, it := range items {
		v, err := nativeToValue(it)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}

func fromNativeMap(native interface{}) (types.MapValue, error) {
	asMap, ok := native.(map[string]interface{})
	if !ok {
		return types.MapValue{}, errs.Wrap(errs.KindProtocol, nil, "malformed packed map")
	}

	ordered, _ := asMap["ordered"].(bool)
	rawEntries, _ := asMap["entries"].([]interface{})

	entries := make([]types.MapEntry, 0, len(rawEntries))

	for _, re := range rawEntries {
		em, ok := re.(map[string]interface{})
		if !ok {
			continue
		}

		k, err := nativeToValue(em["k"])
		if err != nil {
			return types.MapValue{}, err
		}

		v, err := nativeToValue(em["v"])
		if err != nil {
			return types.MapValue{}, err
		}

		entries = append(entries, types.MapEntry{Key: k, Value: v})
	}

	return types.MapValue{Ordered: ordered, Entries: entries}, nil
}

func nativeToValue(native interface{}) (types.Value, error) {
	switch val := native.(type) {
	case nil:
		return types.NilValue{}, nil
	case bool:
		return types.BoolValue(val), nil
	case int64:
		return types.IntValue(val), nil
	case uint64:
		return types.UintValue(val), nil
	case int8:
		return types.IntValue(val), nil
	case int16:
		return types.IntValue(val), nil
	case int32:
		return types.IntValue(val), nil
	case int:
		return types.IntValue(val), nil
	case uint8:
		return types.UintValue(val), nil
	case uint16:
		return types.UintValue(val), nil
	case uint32:
		return types.UintValue(val), nil
	case uint:
		return types.UintValue(val), nil
	case float64:
		return types.FloatValue(val), nil
	case string:
		return types.StringValue(val), nil
	case []byte:
		return types.BlobValue(val), nil
	case []interface{}:
		return fromNativeList(val)
	case map[string]interface{}:
		if geo, ok := val["geojson"]; ok {
			s, _ := geo.(string)
			return types.GeoJSONValue(s), nil
		}

		if hll, ok := val["hll"]; ok {
			b, _ := hll.([]byte)
			return types.HLLValue(append([]byte(nil), b...)), nil
		}

		return fromNativeMap(val)
	default:
		return nil, fmt.Errorf("%w: cannot decode packed value of type %T", errs.ErrPolicy, native)
	}
}
