package harness

import (
	_ "embed"
)

// RuntimeFile is the file name the page runtime is served under
const RuntimeFile = "vizard-runtime.js"

// TargetRootID is the element every test renders into
const TargetRootID = "vizardTargetRoot"

// RuntimeScript is the in-page registration and execution runtime.
// It must be loaded before the compiled test bundle.
//
//go:embed runtime.js
var RuntimeScript []byte
