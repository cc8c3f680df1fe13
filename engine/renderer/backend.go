package renderer

import (
	"fmt"

	"github.com/spaghettifunk/prism/engine/config"
	"github.com/spaghettifunk/prism/engine/renderer/headless"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
)

// NewBackend creates the GraphicsDevice named by the config. The Vulkan
// backend presents to window; the headless one needs none.
func NewBackend(cfg *config.Config, window vulkan.Window) (metadata.GraphicsDevice, error) {
	extent := metadata.Extent2D{Width: cfg.Application.Width, Height: cfg.Application.Height}
	switch cfg.Renderer.Backend {
	case config.BackendHeadless:
		return headless.New(headless.WithSwapchain(cfg.Renderer.SwapchainImages, extent)), nil
	case config.BackendVulkan:
		if window == nil {
			return nil, fmt.Errorf("the vulkan backend needs a window")
		}
		device, err := vulkan.New(window, vulkan.Options{
			AppName:         cfg.Application.Name,
			Validation:      cfg.Renderer.Validation,
			SwapchainImages: cfg.Renderer.SwapchainImages,
			Extent:          extent,
		})
		if err != nil {
			return nil, err
		}
		return device, nil
	default:
		return nil, fmt.Errorf("unknown renderer backend `%s`", cfg.Renderer.Backend)
	}
}
