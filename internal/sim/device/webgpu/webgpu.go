// Package webgpu is the device backend: it uploads the pool, the compiled
// tables, and the dispatch descriptors to GPU storage buffers and runs the
// WGSL mirrors of the pass kernels. The CPU executor remains the semantic
// reference; this backend exists for interactive-scale worlds.
package webgpu

import (
	"embed"
	"encoding/binary"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"alkahest/internal/core"
	"alkahest/internal/sim/kernels"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

// descStride is the per-chunk descriptor stride in u32 words: read base,
// write base, 26 neighbor bases, chunk coord xyz, one pad.
const descStride = 32

// cmdStride is the packed command stride in u32 words.
const cmdStride = 10

// uniformSize is the byte size of the Uniforms struct in common.wgsl.
const uniformSize = 32

var passOrder = []string{"commands", "movement", "reactions", "thermal", "electrical", "pressure", "activity"}

// Executor is the WebGPU implementation of sim.Executor.
type Executor struct {
	device *wgpu.Device
	queue  *wgpu.Queue

	layout    *wgpu.BindGroupLayout
	pipelines map[string]*wgpu.ComputePipeline

	voxBuf      *wgpu.Buffer
	chargeBuf   *wgpu.Buffer
	propsBuf    *wgpu.Buffer
	lookupBuf   *wgpu.Buffer
	rulesBuf    *wgpu.Buffer
	descBuf     *wgpu.Buffer
	commandBuf  *wgpu.Buffer
	activityBuf *wgpu.Buffer
	uniformBuf  *wgpu.Buffer
	diagBuf     *wgpu.Buffer

	voxStaging      *wgpu.Buffer
	chargeStaging   *wgpu.Buffer
	activityStaging *wgpu.Buffer

	tablesDigest string
}

// New acquires a device and compiles every pass pipeline.
func New() (*Executor, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("E_DEVICE: adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("E_DEVICE: device: %w", err)
	}

	e := &Executor{
		device:    device,
		queue:     device.GetQueue(),
		pipelines: map[string]*wgpu.ComputePipeline{},
	}
	if err := e.buildPipelines(); err != nil {
		e.Release()
		return nil, err
	}
	return e, nil
}

func (e *Executor) Name() string { return "webgpu" }

// Release frees every device resource.
func (e *Executor) Release() {
	for _, b := range []*wgpu.Buffer{
		e.voxBuf, e.chargeBuf, e.propsBuf, e.lookupBuf, e.rulesBuf,
		e.descBuf, e.commandBuf, e.activityBuf, e.uniformBuf, e.diagBuf,
		e.voxStaging, e.chargeStaging, e.activityStaging,
	} {
		if b != nil {
			b.Release()
		}
	}
	if e.device != nil {
		e.device.Release()
	}
}

func (e *Executor) buildPipelines() error {
	common, err := shaderFS.ReadFile("shaders/common.wgsl")
	if err != nil {
		return err
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, 12)
	storage := func(binding uint32, readOnly bool) wgpu.BindGroupLayoutEntry {
		t := wgpu.BufferBindingTypeStorage
		if readOnly {
			t = wgpu.BufferBindingTypeReadOnlyStorage
		}
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: t},
		}
	}
	entries = append(entries,
		storage(0, false), // voxel pool (slot roles live in the descriptor)
		storage(1, false), // charge pool
		storage(2, true),  // material props
		storage(3, true),  // rule lookup
		storage(4, true),  // rule data
		storage(5, true),  // chunk descriptors
		storage(6, true),  // commands
		storage(7, false), // activity flags
		wgpu.BindGroupLayoutEntry{
			Binding:    8,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
		},
		storage(9, false), // diag
	)

	layout, err := e.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "sim-bind-group-layout",
		Entries: entries,
	})
	if err != nil {
		return err
	}
	e.layout = layout

	pipelineLayout, err := e.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "sim-pipeline-layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return err
	}
	defer pipelineLayout.Release()

	for _, name := range passOrder {
		src, err := shaderFS.ReadFile("shaders/" + name + ".wgsl")
		if err != nil {
			return err
		}
		module, err := e.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          name,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: string(common) + "\n" + string(src)},
		})
		if err != nil {
			return fmt.Errorf("E_DEVICE: compile %s: %w", name, err)
		}
		pipe, err := e.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  name,
			Layout: pipelineLayout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: "main",
			},
		})
		module.Release()
		if err != nil {
			return fmt.Errorf("E_DEVICE: pipeline %s: %w", name, err)
		}
		e.pipelines[name] = pipe
	}
	return nil
}

// ensureBuffers (re)creates device buffers sized for the job. Table
// buffers are uploaded once per rule set; pool buffers once per size.
func (e *Executor) ensureBuffers(job *kernels.TickJob) error {
	mk := func(label string, size int, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
		return e.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: label,
			Size:  uint64(align4(size)),
			Usage: usage,
		})
	}
	storageUsage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

	var err error
	if e.voxBuf == nil || e.voxBuf.GetSize() < uint64(len(job.Vox)*4) {
		if e.voxBuf != nil {
			e.voxBuf.Release()
			e.voxStaging.Release()
		}
		if e.voxBuf, err = mk("pool-vox", len(job.Vox)*4, storageUsage); err != nil {
			return err
		}
		if e.voxStaging, err = mk("pool-vox-staging", len(job.Vox)*4,
			wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst); err != nil {
			return err
		}
	}
	if e.chargeBuf == nil || e.chargeBuf.GetSize() < uint64(len(job.Charge)*4) {
		if e.chargeBuf != nil {
			e.chargeBuf.Release()
			e.chargeStaging.Release()
		}
		if e.chargeBuf, err = mk("pool-charge", len(job.Charge)*4, storageUsage); err != nil {
			return err
		}
		if e.chargeStaging, err = mk("pool-charge-staging", len(job.Charge)*4,
			wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst); err != nil {
			return err
		}
	}

	if e.tablesDigest != job.Tables.Digest() {
		if e.propsBuf != nil {
			e.propsBuf.Release()
			e.lookupBuf.Release()
			e.rulesBuf.Release()
		}
		if e.propsBuf, err = e.uploadInit("rule-props", job.Tables.PackProps()); err != nil {
			return err
		}
		if e.lookupBuf, err = e.uploadInit("rule-lookup", job.Tables.PackLookup()); err != nil {
			return err
		}
		if e.rulesBuf, err = e.uploadInit("rule-data", job.Tables.PackRules()); err != nil {
			return err
		}
		e.tablesDigest = job.Tables.Digest()
	}

	descSize := maxInt(len(job.Chunks), 1) * descStride * 4
	if e.descBuf == nil || e.descBuf.GetSize() < uint64(descSize) {
		if e.descBuf != nil {
			e.descBuf.Release()
			e.activityBuf.Release()
			e.activityStaging.Release()
		}
		if e.descBuf, err = mk("chunk-desc", descSize, storageUsage); err != nil {
			return err
		}
		if e.activityBuf, err = mk("activity-flags", maxInt(len(job.Chunks), 1)*4, storageUsage); err != nil {
			return err
		}
		if e.activityStaging, err = mk("activity-staging", maxInt(len(job.Chunks), 1)*4,
			wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst); err != nil {
			return err
		}
	}

	if e.commandBuf == nil {
		if e.commandBuf, err = mk("sim-commands", core.MaxCommands*cmdStride*4, storageUsage); err != nil {
			return err
		}
		if e.uniformBuf, err = mk("sim-uniforms", uniformSize,
			wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst); err != nil {
			return err
		}
		if e.diagBuf, err = mk("sim-diag", kernels.DiagWords*4, storageUsage); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) uploadInit(label string, data []byte) (*wgpu.Buffer, error) {
	buf, err := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(align4(len(data))),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	if err := e.queue.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// Run uploads the job, encodes the seven passes, submits, and reads the
// pool and activity flags back into the job slices.
func (e *Executor) Run(job *kernels.TickJob) error {
	if err := e.ensureBuffers(job); err != nil {
		return err
	}

	if err := e.queue.WriteBuffer(e.voxBuf, 0, u32Bytes(job.Vox)); err != nil {
		return err
	}
	if err := e.queue.WriteBuffer(e.chargeBuf, 0, u32Bytes(job.Charge)); err != nil {
		return err
	}
	if err := e.queue.WriteBuffer(e.descBuf, 0, packDescriptors(job.Chunks)); err != nil {
		return err
	}
	if err := e.queue.WriteBuffer(e.commandBuf, 0, packCommands(job.Commands)); err != nil {
		return err
	}
	if err := e.queue.WriteBuffer(e.activityBuf, 0, make([]byte, len(job.Chunks)*4)); err != nil {
		return err
	}

	// Propagate: read slot -> write slot per chunk, then the fixed pass
	// order. Movement needs one dispatch per (direction, parity) sub-pass
	// with fresh uniforms, so each sub-pass is its own submit.
	bind, err := e.bindGroup(job)
	if err != nil {
		return err
	}
	defer bind.Release()

	groupsXY := uint32(core.ChunkSize / 8)
	groupsZ := uint32(len(job.Chunks)) * uint32(core.ChunkSize/4)
	if len(job.Chunks) == 0 {
		return nil
	}

	if err := e.submitPropagate(job); err != nil {
		return err
	}

	e.writeUniforms(job, kernels.SubPass{})
	if err := e.submitPass("commands", bind, (core.MaxCommands+63)/64, 1, 1); err != nil {
		return err
	}

	for _, sp := range kernels.MovementSchedule {
		e.writeUniforms(job, sp)
		if err := e.submitPass("movement", bind, groupsXY, groupsXY, groupsZ); err != nil {
			return err
		}
	}

	e.writeUniforms(job, kernels.SubPass{})
	for _, name := range []string{"reactions", "thermal", "electrical", "pressure"} {
		if err := e.submitPass(name, bind, groupsXY, groupsXY, groupsZ); err != nil {
			return err
		}
	}

	wordsPerChunk := uint32(core.VoxelsPerChunk * core.VoxelWords)
	if err := e.submitPass("activity", bind, (wordsPerChunk+255)/256, uint32(len(job.Chunks)), 1); err != nil {
		return err
	}

	return e.readback(job)
}

func (e *Executor) bindGroup(job *kernels.TickJob) (*wgpu.BindGroup, error) {
	entry := func(binding uint32, buf *wgpu.Buffer) wgpu.BindGroupEntry {
		return wgpu.BindGroupEntry{Binding: binding, Buffer: buf, Size: wgpu.WholeSize}
	}
	return e.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "sim-bind-group",
		Layout: e.layout,
		Entries: []wgpu.BindGroupEntry{
			entry(0, e.voxBuf),
			entry(1, e.chargeBuf),
			entry(2, e.propsBuf),
			entry(3, e.lookupBuf),
			entry(4, e.rulesBuf),
			entry(5, e.descBuf),
			entry(6, e.commandBuf),
			entry(7, e.activityBuf),
			entry(8, e.uniformBuf),
			entry(9, e.diagBuf),
		},
	})
}

// submitPropagate copies each chunk's read slot onto its write slot.
func (e *Executor) submitPropagate(job *kernels.TickJob) error {
	enc, err := e.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer enc.Release()

	voxBytes := uint64(core.VoxelsPerChunk * core.VoxelWords * 4)
	chargeBytes := uint64(core.VoxelsPerChunk * 4)
	for i := range job.Chunks {
		c := &job.Chunks[i]
		enc.CopyBufferToBuffer(e.voxBuf, uint64(c.ReadBase)*4, e.voxBuf, uint64(c.WriteBase)*4, voxBytes)
		enc.CopyBufferToBuffer(e.chargeBuf, uint64(c.ReadBase/2)*4, e.chargeBuf, uint64(c.WriteBase/2)*4, chargeBytes)
	}
	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	e.queue.Submit(cmd)
	return nil
}

func (e *Executor) submitPass(name string, bind *wgpu.BindGroup, x, y, z uint32) error {
	enc, err := e.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer enc.Release()

	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(e.pipelines[name])
	pass.SetBindGroup(0, bind, nil)
	pass.DispatchWorkgroups(x, y, z)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	e.queue.Submit(cmd)
	return nil
}

func (e *Executor) writeUniforms(job *kernels.TickJob, sp kernels.SubPass) {
	buf := make([]byte, uniformSize)
	binary.LittleEndian.PutUint32(buf[0:], job.Tick)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(job.Chunks)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(job.Commands)))
	binary.LittleEndian.PutUint32(buf[12:], job.Tables.MaterialCount)
	binary.LittleEndian.PutUint32(buf[16:], uint32(int32(sp.Dir.X)))
	binary.LittleEndian.PutUint32(buf[20:], uint32(int32(sp.Dir.Y)))
	binary.LittleEndian.PutUint32(buf[24:], uint32(int32(sp.Dir.Z)))
	binary.LittleEndian.PutUint32(buf[28:], uint32(sp.Parity))
	_ = e.queue.WriteBuffer(e.uniformBuf, 0, buf)
}

// readback blocks until the device finishes and copies the write pool and
// the activity flags back into host memory.
func (e *Executor) readback(job *kernels.TickJob) error {
	enc, err := e.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer enc.Release()
	enc.CopyBufferToBuffer(e.voxBuf, 0, e.voxStaging, 0, uint64(len(job.Vox)*4))
	enc.CopyBufferToBuffer(e.chargeBuf, 0, e.chargeStaging, 0, uint64(len(job.Charge)*4))
	enc.CopyBufferToBuffer(e.activityBuf, 0, e.activityStaging, 0, uint64(len(job.Activity)*4))
	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	e.queue.Submit(cmd)

	if err := e.mapInto(e.voxStaging, len(job.Vox), job.Vox); err != nil {
		return err
	}
	if err := e.mapInto(e.chargeStaging, len(job.Charge), job.Charge); err != nil {
		return err
	}
	return e.mapInto(e.activityStaging, len(job.Activity), job.Activity)
}

func (e *Executor) mapInto(staging *wgpu.Buffer, words int, dst []uint32) error {
	done := false
	var status wgpu.BufferMapAsyncStatus
	err := staging.MapAsync(wgpu.MapModeRead, 0, uint64(words*4), func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	if err != nil {
		return err
	}
	for !done {
		e.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("E_DEVICE: map status %v", status)
	}
	raw := staging.GetMappedRange(0, uint(words*4))
	for i := 0; i < words; i++ {
		dst[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	staging.Unmap()
	return nil
}

func packDescriptors(chunks []kernels.Chunk) []byte {
	buf := make([]byte, maxInt(len(chunks), 1)*descStride*4)
	for i := range chunks {
		c := &chunks[i]
		o := i * descStride * 4
		binary.LittleEndian.PutUint32(buf[o:], c.ReadBase)
		binary.LittleEndian.PutUint32(buf[o+4:], c.WriteBase)
		for n, nb := range c.Neighbors {
			binary.LittleEndian.PutUint32(buf[o+8+n*4:], nb)
		}
		binary.LittleEndian.PutUint32(buf[o+112:], uint32(int32(c.Coord.X)))
		binary.LittleEndian.PutUint32(buf[o+116:], uint32(int32(c.Coord.Y)))
		binary.LittleEndian.PutUint32(buf[o+120:], uint32(int32(c.Coord.Z)))
	}
	return buf
}

func packCommands(cmds []kernels.Command) []byte {
	buf := make([]byte, core.MaxCommands*cmdStride*4)
	for i, c := range cmds {
		if i >= core.MaxCommands {
			break
		}
		o := i * cmdStride * 4
		binary.LittleEndian.PutUint32(buf[o:], c.Tool)
		binary.LittleEndian.PutUint32(buf[o+4:], uint32(c.Chunk))
		binary.LittleEndian.PutUint32(buf[o+8:], uint32(int32(c.Local.X)))
		binary.LittleEndian.PutUint32(buf[o+12:], uint32(int32(c.Local.Y)))
		binary.LittleEndian.PutUint32(buf[o+16:], uint32(int32(c.Local.Z)))
		binary.LittleEndian.PutUint32(buf[o+20:], uint32(c.Material))
		binary.LittleEndian.PutUint32(buf[o+24:], uint32(c.Delta))
		dir := uint32(uint8(c.Dir[0])) | uint32(uint8(c.Dir[1]))<<8 | uint32(uint8(c.Dir[2]))<<16
		binary.LittleEndian.PutUint32(buf[o+28:], dir)
		binary.LittleEndian.PutUint32(buf[o+32:], uint32(c.Radius))
		binary.LittleEndian.PutUint32(buf[o+36:], uint32(c.Shape))
	}
	return buf
}

func u32Bytes(words []uint32) []byte {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func align4(n int) int { return (n + 3) &^ 3 }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
