package sandbox

import "encoding/json"

// stubMarkerVersion is bumped if the marker document's shape changes.
const stubMarkerVersion = 1

// wasmStubMarker is written in place of a compiled .wasm binary for a
// skill that has a body but no precompiled component yet. It is NOT a
// real WASM module; the sandbox subprocess detects the marker and returns
// body as the skill's output directly, without loading wazero at all.
type wasmStubMarker struct {
	BoternityWasmStub bool   `json:"boternity_wasm_stub"`
	Version           int    `json:"version"`
	Body              string `json:"body"`
}

// materializeStub renders a skill body as a stub marker document, for
// writing to the path a skill would otherwise expect a compiled module
// at.
func materializeStub(body string) ([]byte, error) {
	return json.MarshalIndent(wasmStubMarker{BoternityWasmStub: true, Version: stubMarkerVersion, Body: body}, "", "  ")
}

// parseStub reports whether raw is a stub marker document, returning its
// body if so.
func parseStub(raw []byte) (body string, ok bool) {
	var marker wasmStubMarker
	if err := json.Unmarshal(raw, &marker); err != nil {
		return "", false
	}
	if !marker.BoternityWasmStub {
		return "", false
	}
	return marker.Body, true
}
