// Package wire implements the Arcam FMJ binary control protocol: frame
// encoding and decoding, command and answer code tables, sign-magnitude
// numeric values, decode-mode lookup tables, and AMX Duet device
// identification.
//
// The codec is pure and stateless apart from the Decoder's internal byte
// buffer. All protocol constants are reproduced from the Arcam serial/IP
// control reference and must not be re-derived.
package wire
