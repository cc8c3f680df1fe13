//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine in a window.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", configFile), withStream()); err != nil {
		return err
	}
	return nil
}

// Renders a few hundred frames with the headless backend.
func (Run) Headless() error {
	fmt.Println("Run headless engine...")
	_, err := executeCmd("go", withArgs("run", ".", "-headless", "-frames", "300"), withStream())
	return err
}

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	// The race detector needs cgo, which glfw needs anyway.
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Runs the tests of the render pipeline packages only.
func (Test) Renderer() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withDir("engine/renderer"), withStream())
	return err
}
