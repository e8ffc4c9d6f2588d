// Package backend discovers the two optional backends the stage pipeline
// can lean on: a GPU-accelerated OCR library and a WASM-sandboxed ML
// inference model. Both are probed once at startup; their absence
// degrades only the stages that depend on them (§9: "capability
// discovery, not compile-time linkage"). Grounded on the teacher's
// single-constructor-per-tool pattern (one jail, one config, one trie per
// run), generalized into "probe once per run, register what answered."
package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/ebitengine/purego"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Registry holds whichever optional backends were found at startup.
// A worker consults it once per document; it never changes after
// Discover returns, so reads need no locking (§9: global state is
// limited to documented init/teardown points).
type Registry struct {
	gpuHandle    uintptr
	gpuAvailable bool
	gpuVersion   string

	mlRuntime   wazero.Runtime
	mlModule    api.Module
	mlAvailable bool
}

// GPUAvailable reports whether a GPU-OCR library was found.
func (r *Registry) GPUAvailable() bool { return r != nil && r.gpuAvailable }

// GPUVersion returns the GPU-OCR library's version string, if available.
func (r *Registry) GPUVersion() string { return r.gpuVersion }

// MLAvailable reports whether an ML inference model was loaded.
func (r *Registry) MLAvailable() bool { return r != nil && r.mlAvailable }

// Discover probes for a GPU-OCR dynamic library at gpuLibraryPath (empty
// disables the probe) and for a WASM ML model under modelDir (empty
// disables the probe). Either or both may come back unavailable; neither
// failure is fatal to the caller — it only means the corresponding stages
// report `not_available` (§4.1/§9).
func Discover(ctx context.Context, gpuLibraryPath, modelDir string) *Registry {
	reg := &Registry{}
	reg.probeGPU(gpuLibraryPath)
	reg.probeML(ctx, modelDir)
	return reg
}

func (r *Registry) probeGPU(path string) {
	if path == "" {
		return
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return
	}

	var versionFn func() string
	purego.RegisterLibFunc(&versionFn, handle, "version")

	r.gpuHandle = handle
	r.gpuAvailable = true
	r.gpuVersion = safeCallVersion(versionFn)
}

func safeCallVersion(fn func() string) (version string) {
	defer func() {
		if recover() != nil {
			version = "unknown"
		}
	}()
	if fn == nil {
		return "unknown"
	}
	return fn()
}

func (r *Registry) probeML(ctx context.Context, modelDir string) {
	if modelDir == "" {
		return
	}
	wasmPath := modelDir + "/model.wasm"
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return
	}

	runtime := wazero.NewRuntime(ctx)
	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return
	}
	module, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		runtime.Close(ctx)
		return
	}

	r.mlRuntime = runtime
	r.mlModule = module
	r.mlAvailable = true
}

// Infer calls the ML model's exported `infer` function with len(input) as
// its only argument and returns the function's first result formatted as
// decimal text (nil when it returns none). The input bytes themselves are
// not copied into the module's memory, and no output buffer of the module
// is read. Returns an error when no model
// is loaded; callers should translate that into the stage's
// `not_available` status rather than failing the document (§4.6, §7).
func (r *Registry) Infer(ctx context.Context, input []byte) ([]byte, error) {
	if !r.MLAvailable() {
		return nil, fmt.Errorf("backend: no ml model loaded")
	}
	fn := r.mlModule.ExportedFunction("infer")
	if fn == nil {
		return nil, fmt.Errorf("backend: model exports no infer function")
	}
	results, err := fn.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, fmt.Errorf("backend: infer call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return []byte(fmt.Sprintf("%d", results[0])), nil
}

// Close releases the ML runtime and GPU library handle, if held.
func (r *Registry) Close(ctx context.Context) error {
	if r.mlRuntime != nil {
		if err := r.mlRuntime.Close(ctx); err != nil {
			return err
		}
	}
	if r.gpuHandle != 0 {
		return purego.Dlclose(r.gpuHandle)
	}
	return nil
}
