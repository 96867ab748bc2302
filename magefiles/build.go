//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderSources = []string{
	"assets/shaders/basic.vert",
	"assets/shaders/basic.frag",
}

// Compiles the GLSL shaders to SPIR-V next to their sources.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the engine binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "prism"), "."), withStream())
	return err
}

func buildShaders() error {
	for _, src := range shaderSources {
		if _, err := executeCmd("glslc", withArgs(src, "-o", src+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
