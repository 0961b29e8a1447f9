package pose

import "fmt"

// Stride is the number of scalars stored per keypoint.
const Stride = 3

// Keypoint fields, in storage order.
const (
	FieldX = iota
	FieldY
	FieldScore
)

// Keypoint is one detected body part in pixel space.
type Keypoint struct {
	X     float32
	Y     float32
	Score float32
}

// KeypointSet is the detector output for one image: persons x parts
// keypoints stored flat as [x, y, score, x, y, score, ...].
type KeypointSet struct {
	persons int
	parts   int
	data    []float32
}

// NewKeypointSet validates the layout and wraps data without copying.
func NewKeypointSet(persons, parts int, data []float32) (*KeypointSet, error) {
	if persons < 0 || parts < 0 {
		return nil, fmt.Errorf("%w: negative shape %dx%d", ErrInvalidKeypoints, persons, parts)
	}
	if want := persons * parts * Stride; len(data) != want {
		return nil, fmt.Errorf("%w: %d persons x %d parts needs %d values, got %d",
			ErrInvalidKeypoints, persons, parts, want, len(data))
	}
	return &KeypointSet{persons: persons, parts: parts, data: data}, nil
}

// KeypointsFromPersons flattens per-person keypoints. Every person must have
// the same number of parts.
func KeypointsFromPersons(persons [][]Keypoint) (*KeypointSet, error) {
	if len(persons) == 0 {
		return &KeypointSet{}, nil
	}
	parts := len(persons[0])
	data := make([]float32, 0, len(persons)*parts*Stride)
	for p, kps := range persons {
		if len(kps) != parts {
			return nil, fmt.Errorf("%w: person %d has %d parts, want %d",
				ErrInvalidKeypoints, p, len(kps), parts)
		}
		for _, kp := range kps {
			data = append(data, kp.X, kp.Y, kp.Score)
		}
	}
	return NewKeypointSet(len(persons), parts, data)
}

// Persons returns the number of detected persons.
func (k *KeypointSet) Persons() int {
	if k == nil {
		return 0
	}
	return k.persons
}

// Parts returns the number of body parts per person.
func (k *KeypointSet) Parts() int {
	if k == nil {
		return 0
	}
	return k.parts
}

// Index maps (person, part, field) to a position in the flat array:
//
//	Stride*(person*parts + part) + field
//
// It does no bounds checking; use Keypoint for checked access.
func (k *KeypointSet) Index(person, part, field int) int {
	return Stride*(person*k.parts+part) + field
}

// Keypoint returns the keypoint of part for person.
func (k *KeypointSet) Keypoint(person, part int) (Keypoint, error) {
	if person < 0 || person >= k.Persons() || part < 0 || part >= k.Parts() {
		return Keypoint{}, fmt.Errorf("%w: (%d, %d) outside %dx%d",
			ErrIndexOutOfRange, person, part, k.Persons(), k.Parts())
	}
	base := k.Index(person, part, FieldX)
	return Keypoint{
		X:     k.data[base+FieldX],
		Y:     k.data[base+FieldY],
		Score: k.data[base+FieldScore],
	}, nil
}
