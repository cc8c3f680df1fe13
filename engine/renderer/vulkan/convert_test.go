package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		vf, err := vkFormat(f)
		require.NoError(t, err)
		assert.Equal(t, f, formatFromVk(vf))
	}
	_, err := vkFormat(metadata.FormatUndefined)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
	assert.Equal(t, metadata.FormatUndefined, formatFromVk(vk.FormatR4g4UnormPack8))
}

func TestResultErrorSentinels(t *testing.T) {
	assert.NoError(t, resultError("op", vk.Success))
	assert.NoError(t, resultError("op", vk.Suboptimal))

	cases := map[vk.Result]error{
		vk.ErrorDeviceLost:         core.ErrDeviceLost,
		vk.ErrorOutOfHostMemory:    core.ErrOutOfDeviceMemory,
		vk.ErrorOutOfDeviceMemory:  core.ErrOutOfDeviceMemory,
		vk.ErrorFormatNotSupported: core.ErrUnsupportedFormat,
		vk.ErrorOutOfPoolMemory:    core.ErrPoolExhausted,
		vk.ErrorFragmentedPool:     core.ErrPoolExhausted,
		vk.ErrorOutOfDate:          core.ErrSwapchainOutOfDate,
		vk.ErrorSurfaceLost:        core.ErrUnknown,
	}
	for result, sentinel := range cases {
		err := resultError("vkTest", result)
		assert.ErrorIs(t, err, sentinel, VulkanResultString(result, false))
		assert.Contains(t, err.Error(), "vkTest")
	}
	assert.True(t, IsDeviceLost(resultError("vkQueueSubmit", vk.ErrorDeviceLost)))
}

func TestAspectOf(t *testing.T) {
	assert.Equal(t, metadata.ImageAspectColor, aspectOf(metadata.FormatRGBA16Float))
	assert.Equal(t, metadata.ImageAspectDepth, aspectOf(metadata.FormatD32Float))
	assert.Equal(t, metadata.ImageAspectDepth|metadata.ImageAspectStencil, aspectOf(metadata.FormatD24UnormS8Uint))
}

func TestVertexInput(t *testing.T) {
	bindings, attributes := vertexInput(metadata.VertexLayoutMesh)
	require.Len(t, bindings, 1)
	assert.Equal(t, uint32(meshVertexStride), bindings[0].Stride)
	require.Len(t, attributes, 4)
	last := attributes[3]
	assert.Equal(t, uint32(meshVertexStride), last.Offset+16)

	bindings, attributes = vertexInput(metadata.VertexLayoutQuad)
	require.Len(t, bindings, 1)
	assert.Equal(t, uint32(quadVertexStride), bindings[0].Stride)
	assert.Len(t, attributes, 1)

	bindings, attributes = vertexInput(metadata.VertexLayoutNone)
	assert.Empty(t, bindings)
	assert.Empty(t, attributes)
}

func TestLayoutAccessTransferPair(t *testing.T) {
	srcAccess, srcStage := layoutAccess(metadata.ImageLayoutUndefined)
	assert.Zero(t, srcAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), srcStage)

	dstAccess, dstStage := layoutAccess(metadata.ImageLayoutTransferDst)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), dstAccess)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), dstStage)
}
