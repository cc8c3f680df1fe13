package pass

import (
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Registry is the context every pass is constructed with. It replaces the
// global pools a pass would otherwise reach for.
type Registry struct {
	Device      metadata.GraphicsDevice
	Extent      metadata.Extent2D
	FrameCount  int
	Resources   *Resources
	Shaders     assets.ShaderSource
	Settings    config.PassSettings
	Descriptors config.DescriptorConfig
	MaxObjects  int
}

// PoolHints are the descriptor counts every pass pool is sized with.
// Acceleration structures are left out on devices that cannot create them.
func (r *Registry) PoolHints() []metadata.PoolSize {
	d := r.Descriptors
	hints := []metadata.PoolSize{
		{Type: metadata.DescriptorTypeUniformBuffer, Count: d.UniformBuffers},
		{Type: metadata.DescriptorTypeUniformBufferDynamic, Count: d.DynamicUniformBuffers},
		{Type: metadata.DescriptorTypeStorageBuffer, Count: d.StorageBuffers},
		{Type: metadata.DescriptorTypeCombinedImageSampler, Count: d.SampledImages},
		{Type: metadata.DescriptorTypeStorageImage, Count: d.StorageImages},
	}
	if r.SupportsAccelerationStructures() {
		hints = append(hints, metadata.PoolSize{Type: metadata.DescriptorTypeAccelerationStructure, Count: d.AccelerationStructures})
	}
	return hints
}

func (r *Registry) SupportsAccelerationStructures() bool {
	return r.Device != nil && r.Device.Limits().SupportsAccelerationStructures
}

func (r *Registry) MaxSets() uint32 {
	return r.Descriptors.MaxSets
}

// LoadShader resolves a shader module through the shader source.
func (r *Registry) LoadShader(stage metadata.ShaderStage, name string) (metadata.ShaderModule, error) {
	code, err := r.Shaders.Load(name)
	if err != nil {
		return metadata.ShaderModule{}, err
	}
	return metadata.ShaderModule{Stage: stage, Name: name, Entry: "main", Code: code}, nil
}
