package dispatch

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/docvellum/vellum/abi"
	"github.com/docvellum/vellum/stage"
)

// encodeDocument packs a ParseResult's fixed-layout bytes followed by a
// length-prefixed JSON encoding of its StageResults, the single blob the
// two-level cache stores under one key. The ParseResult's own ABI layout
// is reused as-is (no reason to re-encode a contract that is already a
// fixed-size byte range); StageResults has no ABI contract so it travels
// as JSON, the same encoding the output writer uses downstream.
func encodeDocument(res *abi.ParseResult, results stage.Results) []byte {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		// StageResults holds only plain data (strings, slices, maps of
		// comparable value types); a marshal failure here would mean a
		// field type changed incompatibly with JSON, not a runtime
		// condition a caller can recover from.
		panic(fmt.Sprintf("dispatch: encode stage results: %v", err))
	}

	buf := make([]byte, 0, abi.ParseResultSize+8+len(resultsJSON))
	buf = append(buf, res.Bytes()...)

	var lenPrefix [8]byte
	binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(resultsJSON)))
	buf = append(buf, lenPrefix[:]...)
	buf = append(buf, resultsJSON...)
	return buf
}

// decodeDocument reverses encodeDocument. The returned ParseResult is an
// owned copy, safe to use past the lifetime of buf.
func decodeDocument(buf []byte) (*abi.ParseResult, stage.Results, error) {
	if len(buf) < abi.ParseResultSize+8 {
		return nil, stage.Results{}, fmt.Errorf("dispatch: encoded document too short (%d bytes)", len(buf))
	}

	res, err := abi.DecodeParseResult(buf[:abi.ParseResultSize])
	if err != nil {
		return nil, stage.Results{}, fmt.Errorf("dispatch: decode parse result: %w", err)
	}
	owned := abi.CloneParseResult(res)

	rest := buf[abi.ParseResultSize:]
	n := binary.BigEndian.Uint64(rest[:8])
	jsonBytes := rest[8:]
	if uint64(len(jsonBytes)) != n {
		return nil, stage.Results{}, fmt.Errorf("dispatch: stage results length mismatch: header says %d, have %d", n, len(jsonBytes))
	}

	var results stage.Results
	if err := json.Unmarshal(jsonBytes, &results); err != nil {
		return nil, stage.Results{}, fmt.Errorf("dispatch: decode stage results: %w", err)
	}
	return owned, results, nil
}
