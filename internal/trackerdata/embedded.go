package trackerdata

import (
	"bytes"
	_ "embed"
)

// EmbeddedEtag identifies the tracker data shipped with the binary.
const EmbeddedEtag = "embedded-1"

//go:embed embedded.json
var embeddedTDS []byte

// Embedded returns the tracker data shipped with the binary.
func Embedded() *TrackerData {
	td, err := Decode(bytes.NewReader(embeddedTDS))
	if err != nil {
		panic("trackerdata: embedded data is invalid: " + err.Error())
	}
	return td
}
