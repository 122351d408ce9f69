package types

// ParticleType is the wire-level tag byte identifying the encoding of a Value.
type ParticleType uint8

const (
	ParticleNil      ParticleType = 0
	ParticleInt      ParticleType = 1
	ParticleFloat    ParticleType = 2
	ParticleString   ParticleType = 3
	ParticleBlob     ParticleType = 4
	ParticleList     ParticleType = 20
	ParticleMap      ParticleType = 19
	ParticleGeoJSON  ParticleType = 23
	ParticleHLL      ParticleType = 18
	ParticleBool     ParticleType = 17
	ParticleUint     ParticleType = 24
)

func (t ParticleType) String() string {
	switch t {
	case ParticleNil:
		return "nil"
	case ParticleInt:
		return "int"
	case ParticleFloat:
		return "float"
	case ParticleString:
		return "string"
	case ParticleBlob:
		return "blob"
	case ParticleList:
		return "list"
	case ParticleMap:
		return "map"
	case ParticleGeoJSON:
		return "geojson"
	case ParticleHLL:
		return "hll"
	case ParticleBool:
		return "bool"
	case ParticleUint:
		return "uint"
	default:
		return "unknown"
	}
}
