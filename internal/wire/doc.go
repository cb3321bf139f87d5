// Package wire implements the byte framing shared by every connection:
// FixedUint32 (4 bytes, little-endian) and LengthPrefixedString (FixedUint32
// byte count followed by the raw bytes, no terminator).
//
// Stream performs exact-length transfers through a 4096-byte scratch buffer,
// optionally bounding each chunk with the connection I/O timeout.
package wire
