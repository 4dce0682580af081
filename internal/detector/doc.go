// Package detector adapts hand-landmark inference engines and drives their
// initialization.
//
// # MediaPipe service
//
// MediaPipeEngine runs a Python script, mediapipe_service.py, found through
// MediaPipeConfig.Script or in scripts/ next to the working directory, the
// executable or ~/.candlelight. The interpreter is MediaPipeConfig.Python, a
// venv/bin/python in the same places, or python3. Any script honoring the
// following contract can replace it.
//
// Check mode (--probe) verifies that a delegate can load the model:
//
//	mediapipe_service.py --probe --delegate gpu|cpu
//
// It exits 0 on success. On failure it exits non-zero and its first output
// line is reported as the reason.
//
// Request mode serves one frame at a time until stdin is closed:
//
//	mediapipe_service.py --max-hands N --model lite|full --delegate gpu|cpu --min-confidence F
//
// Each request on stdin is a 4-byte big-endian length followed by that many
// bytes of JPEG. Each answer on stdout is one JSON line:
//
//	{"hands":[{"handedness":"Right","score":0.97,"points":[{"x":0.51,"y":0.12,"z":-0.03}, ...]}]}
//
// points holds the 21 MediaPipe hand landmarks in order, with x and y
// normalized to [0,1] of the image. Hands with fewer than 21 points are
// ignored. A failed frame is answered with {"error":"..."}. Diagnostics go to
// stderr, which is passed through.
package detector
