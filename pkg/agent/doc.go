// Package agent runs the decision engine over a stream of scores.
//
// Input is newline-delimited: each line is either a bare score or an
// object.
//
//	0.92
//	{"media_id":"clip-017.mp4","score":0.72,"attributes":{"source":"upload"}}
//
// Output is one JSON object per non-blank input line, in input order:
//
//	{"line":1,"request_id":"…","decision":{"verdict":"DEEPFAKE",…}}
//	{"line":3,"error":{"kind":"validation","message":"…"}}
//
// Lines starting with '#' are ignored.
package agent
