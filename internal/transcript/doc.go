// Package transcript encodes harness transcripts deterministically.
//
// Transcripts are the captured inputs and outputs of a debugger session.
// They are written to golden files, to the run history store, and hashed
// into run fingerprints, so the encoding must be byte-stable:
//
//   - Object keys are sorted by UTF-16 code units (RFC 8785 ordering)
//   - Strings are NFC normalized and never HTML-escaped
//   - Floats and nulls are rejected
//
// NormalizeOutput is applied to every captured debugger output before it
// is matched or recorded, so that terminal noise (carriage returns, ANSI
// colour sequences, decomposed unicode) never reaches a pattern.
package transcript
