package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

var errMissingVocabulary = errors.New("sandbox: model bundle has neither vocab nor srcvocab+trgvocab")

// SelectPrecision implements spec.md §4.3 step 3: int8shiftAll when the
// model file name ends in "intgemm8.bin", else int8shiftAlphaAll.
func SelectPrecision(modelFileName string) Precision {
	if strings.HasSuffix(modelFileName, "intgemm8.bin") {
		return PrecisionInt8ShiftAll
	}
	return PrecisionInt8ShiftAlphaAll
}

// InferenceConfig is the fixed knob set of spec.md §4.3 step 4. The exact
// values are part of the interface contract with the runtime collaborator:
// changing them changes observable output, so they are not configurable.
type InferenceConfig struct {
	Precision       Precision
	HasQualityModel bool
}

// Render produces the text-form configuration spec.md requires be emitted
// verbatim to the runtime.
func (c InferenceConfig) Render() string {
	skipCost := "false"
	if !c.HasQualityModel {
		skipCost = "true"
	}
	return fmt.Sprintf(
		"beam-size=1\nnormalize=1.0\nword-penalty=0\nmax-length-break=128\n"+
			"mini-batch-words=1024\nworkspace=128\nmax-length-factor=2.0\n"+
			"skip-cost=%s\ncpu-threads=0\nquiet=true\nquiet-translation=true\n"+
			"alignment=soft\nprecision=%s\n",
		skipCost, c.Precision,
	)
}
