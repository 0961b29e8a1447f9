// Package pose turns detector keypoints into 3D skeleton frames.
//
// Two workers live here, each driven by an external scheduler on its own
// goroutine:
//   - Producer.Next hands the freshest color frame to the detector.
//   - Consumer.Accept deprojects a detection result against the latest depth
//     frame and publishes one SkeletonFrame.
//
// Both workers are fail-stop. The first fault is logged once, the worker
// moves to StateStopped and every later call returns the same *WorkerError.
// The scheduler is expected to poll State (or inspect the returned error)
// and shut the pipeline down.
package pose
