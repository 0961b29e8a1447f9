package rgbd

import "errors"

// Sentinel errors for sensor conditions.
var (
	// ErrNoIntrinsics is returned when deprojection is attempted before
	// camera intrinsics are known.
	ErrNoIntrinsics = errors.New("rgbd: camera intrinsics not available")

	// ErrInvalidIntrinsics is returned for intrinsics that fail validation.
	ErrInvalidIntrinsics = errors.New("rgbd: invalid camera intrinsics")

	// ErrMalformedImage is returned when pixel data does not match the
	// declared dimensions.
	ErrMalformedImage = errors.New("rgbd: malformed image")

	// ErrUnsupportedFormat is returned for unknown encodings.
	ErrUnsupportedFormat = errors.New("rgbd: unsupported format")

	// ErrImageTooLarge is returned before decoding a frame whose header
	// declares more pixels than the sensor can produce.
	ErrImageTooLarge = errors.New("rgbd: image too large")

	// ErrSizeMismatch is returned for depth frames that do not match the
	// intrinsics resolution.
	ErrSizeMismatch = errors.New("rgbd: depth size does not match intrinsics")
)
