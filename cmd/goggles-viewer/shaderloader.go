package main

import (
	"fmt"
	"os"
	"strings"
)

// fileShaderLoader implements present.ShaderLoader by reading
// precompiled SPIR-V binaries off disk. Cross-compiling a preset
// pass's .slang source is out of scope (see present.ShaderLoader's
// doc comment); this loader expects a preset author to have already
// run a slang-to-SPIR-V compiler ahead of time and placed the result
// next to the shader source, named "<path>.vert.spv"/"<path>.frag.spv".
type fileShaderLoader struct{}

func (fileShaderLoader) Load(path string) (vertSPIRV, fragSPIRV []byte, err error) {
	base := strings.TrimSuffix(path, ".slang")
	vertSPIRV, err = os.ReadFile(base + ".vert.spv")
	if err != nil {
		return nil, nil, fmt.Errorf("goggles-viewer: reading vertex SPIR-V for %q: %w", path, err)
	}
	fragSPIRV, err = os.ReadFile(base + ".frag.spv")
	if err != nil {
		return nil, nil, fmt.Errorf("goggles-viewer: reading fragment SPIR-V for %q: %w", path, err)
	}
	return vertSPIRV, fragSPIRV, nil
}
