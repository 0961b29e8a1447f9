package pose

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-posebridge/pkg/rgbd"
)

// Pixel is an image-space coordinate.
type Pixel struct {
	X float32
	Y float32
}

// BodyPart is one keypoint with its deprojected point.
// Point is rgbd.InvalidPoint when no depth was available.
type BodyPart struct {
	Pixel Pixel
	Score float32
	Point rgbd.Point3D
}

// Person is the ordered body parts of one detected person.
type Person struct {
	BodyParts []BodyPart
}

// SkeletonFrame is the published result of one detection cycle.
type SkeletonFrame struct {
	FrameID string
	Stamp   time.Time
	Seq     uint64
	WorkID  uuid.UUID
	Persons []Person
}

// Check verifies that every person carries the same number of body parts.
func (f *SkeletonFrame) Check() error {
	if len(f.Persons) == 0 {
		return nil
	}
	parts := len(f.Persons[0].BodyParts)
	for i, p := range f.Persons {
		if len(p.BodyParts) != parts {
			return fmt.Errorf("%w: person %d has %d body parts, want %d",
				ErrInvalidKeypoints, i, len(p.BodyParts), parts)
		}
	}
	return nil
}

// Work is one color frame submitted for detection. Ownership moves with
// the pointer: the producer never touches a Work after returning it.
type Work struct {
	ID      uuid.UUID
	Image   rgbd.ColorImage
	Created time.Time
}

// Result is the detector output routed back to the consumer. A nil Result
// or nil Keypoints both mean "nothing detected".
type Result struct {
	Work      *Work
	Keypoints *KeypointSet
}
