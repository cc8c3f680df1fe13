//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/prism/engine/config"
)

const (
	shaderSourceDir = "shaders"
	configFile      = "prism.toml"
)

type Build mg.Namespace

// Compiles every GLSL shader under shaders/ to SPIR-V in the configured shader directory.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the prism binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/prism", "."), withStream())
	return err
}

func buildShaders() error {
	if err := requireTool("glslc", "install the Vulkan SDK or shaderc"); err != nil {
		return err
	}
	out := config.Default().Assets.ShaderDir
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	var sources []string
	for _, ext := range []string{"*.vert", "*.frag", "*.comp"} {
		matches, err := filepath.Glob(filepath.Join(shaderSourceDir, ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources in %s", shaderSourceDir)
	}
	for _, src := range sources {
		dst := filepath.Join(out, filepath.Base(src)+".spv")
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	fmt.Printf("Compiled %d shaders into %s\n", len(sources), out)
	return nil
}

type Config mg.Namespace

// Writes the default configuration to prism.toml unless it already exists.
func (Config) Default() error {
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists", configFile)
	}
	data, err := config.Marshal(config.Default())
	if err != nil {
		return err
	}
	return os.WriteFile(configFile, data, 0o644)
}
