// Package codec implements the binary building blocks of the dCP wire format.
//
// The package focuses on:
//   - Fixed width encoding of command and result codes
//   - Length prefixed strings (7-bit encoded length followed by UTF-8 bytes)
//   - Payload shapes accepted by the reply helpers (raw bytes, streams, string sequences, json)
//   - The request layout and the reply prefix used for correlation
//
// Wire Format:
//
//	Request:  [16 byte correlation id, only if len > 16] [command code] [payload...]
//	Reply:    [1 byte flag] [16 byte id, only if flag == 1] [result code] [payload...]
//
// Codes are written little endian using exactly the width of their underlying
// integer type, so a uint8 based command enum costs one byte on the wire while a
// uint32 based one costs four.
//
// Thread Safety:
//
//	All functions are stateless and safe for concurrent use.
package codec
